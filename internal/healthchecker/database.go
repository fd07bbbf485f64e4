package healthchecker

import (
	"voicebox/internal/database"
)

func CheckDB() bool {
	_, err := database.NewDatabase()
	return err == nil
}
