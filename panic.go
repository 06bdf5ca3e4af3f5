package relayz

// recoverStage converts a panic raised by a stage into a *PanicError. It must
// be deferred directly by the function whose results it overwrites.
func recoverStage[T any](result *T, err *error, payload T, pipeline, stage Name, index int) {
	if r := recover(); r != nil {
		*result = payload
		*err = &PanicError{
			Pipeline: pipeline,
			Stage:    stage,
			Index:    index,
			Value:    r,
		}
	}
}
