package flasher

// logger guards calls to an optional Logger.
type logger struct {
	Logger
}

func (l logger) debug(msg string, keysAndValues ...interface{}) {
	if l.Logger != nil {
		l.Logger.Debug(msg, keysAndValues...)
	}
}

func (l logger) info(msg string, keysAndValues ...interface{}) {
	if l.Logger != nil {
		l.Logger.Info(msg, keysAndValues...)
	}
}

func (l logger) error(msg string, keysAndValues ...interface{}) {
	if l.Logger != nil {
		l.Logger.Error(msg, keysAndValues...)
	}
}

func (l logger) debugEnabled() bool {
	ll, ok := l.Logger.(LevelLogger)
	return ok && ll.DebugEnabled()
}
