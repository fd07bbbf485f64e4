package circuitbreak

import "voicebox/internal/logging"

var CircuitBreakChan chan string

const (
	ProviderService    = "provider"
	TranscriberService = "transcriber"
	SummarizerService  = "summarizer"
	DBService          = "database"
)

func Init() {
	CircuitBreakChan = make(chan string)
}

func TriggerError(service string) {
	if CircuitBreakChan == nil {
		logging.Logger.Fatal("voicebox app is not created")
	}

	CircuitBreakChan <- service
}
