package logger

import (
	"log/slog"
	"os"
	"sync"
)

var (
	base *slog.Logger
	once sync.Once
)

func Init() {
	once.Do(func() {
		base = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	})
}

func get() *slog.Logger {
	Init()
	return base
}

func toAttrs(fields map[string]interface{}) []any {
	attrs := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		attrs = append(attrs, slog.Any(key, value))
	}
	return attrs
}

func Info(event string, fields map[string]interface{}) {
	get().Info(event, toAttrs(fields)...)
}

func Warn(event string, fields map[string]interface{}) {
	get().Warn(event, toAttrs(fields)...)
}

func Error(event string, err error, fields map[string]interface{}) {
	attrs := toAttrs(fields)
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	get().Error(event, attrs...)
}

func InfoWithUser(userID, event string, fields map[string]interface{}) {
	attrs := toAttrs(fields)
	attrs = append(attrs, slog.String("user_id", userID))
	get().Info(event, attrs...)
}

func WarnWithUser(userID, event string, fields map[string]interface{}) {
	attrs := toAttrs(fields)
	attrs = append(attrs, slog.String("user_id", userID))
	get().Warn(event, attrs...)
}
