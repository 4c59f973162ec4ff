package runner

// Observer is notified as steps and files finish. Implementations must be
// safe for concurrent use when files run in parallel.
type Observer interface {
	StepFinished(file string, step *StepVerdict)
	FileFinished(verdict *FileVerdict)
}

type nopObserver struct{}

func (nopObserver) StepFinished(string, *StepVerdict) {}
func (nopObserver) FileFinished(*FileVerdict)         {}

// Observers fans out notifications to several observers in order.
type Observers []Observer

func (o Observers) StepFinished(file string, step *StepVerdict) {
	for _, obs := range o {
		obs.StepFinished(file, step)
	}
}

func (o Observers) FileFinished(verdict *FileVerdict) {
	for _, obs := range o {
		obs.FileFinished(verdict)
	}
}
