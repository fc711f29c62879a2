package logger

var _ Logger = (*LevelWrapper)(nil)

type LevelWrapper struct {
	Base
	kv []any
}

func WrapLogger(l Base) Logger {
	return &LevelWrapper{Base: l}
}

func (w *LevelWrapper) Log(level LogLevel, msg string, kv ...any) {
	if len(w.kv) == 0 {
		w.Base.Log(level, msg, kv...)
		return
	}

	merged := make([]any, 0, len(w.kv)+len(kv))
	merged = append(merged, w.kv...)
	merged = append(merged, kv...)
	w.Base.Log(level, msg, merged...)
}

func (w *LevelWrapper) With(kv ...any) Logger {
	next := make([]any, 0, len(w.kv)+len(kv))
	next = append(next, w.kv...)
	next = append(next, kv...)

	return &LevelWrapper{Base: w.Base, kv: next}
}

func (w *LevelWrapper) Debug(msg string, kv ...any) {
	w.Log(DebugLevel, msg, kv...)
}

func (w *LevelWrapper) Info(msg string, kv ...any) {
	w.Log(InfoLevel, msg, kv...)
}

func (w *LevelWrapper) Warn(msg string, kv ...any) {
	w.Log(WarnLevel, msg, kv...)
}

func (w *LevelWrapper) Error(msg string, kv ...any) {
	w.Log(ErrorLevel, msg, kv...)
}
