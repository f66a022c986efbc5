package log

import (
	"os"
	"path"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// LogFileName is the log file name
	LogFileName = "notifier.log"
	// LogFileMaxSize is the max size of log file
	LogFileMaxSize int = 100 //mb
	// LogMaxBackups is the max backup count of log file
	LogMaxBackups = 20
	// LogMaxAge is the max time to save log file
	LogMaxAge = 28 //days
)

// Log is global var of log
var Log = zap.NewNop().Sugar()

// Logger is global var of zap log
var Logger = zap.NewNop()

func CallerEncoder(caller zapcore.EntryCaller, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(strings.Join([]string{caller.TrimmedPath()}, ":"))
}

// InitLogger initializer the log. An empty logDir logs to stdout.
func InitLogger(logDir string, logLevel string) error {
	var level zapcore.Level
	if err := level.Set(logLevel); err != nil {
		return err
	}

	loggerConfig := zap.NewProductionConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	loggerConfig.EncoderConfig.EncodeCaller = CallerEncoder

	var ws zapcore.WriteSyncer
	if logDir == "" {
		ws = zapcore.Lock(os.Stdout)
	} else {
		writer := &lumberjack.Logger{
			Filename:   path.Join(logDir, LogFileName),
			MaxSize:    LogFileMaxSize,
			MaxAge:     LogMaxAge,
			MaxBackups: LogMaxBackups,
			LocalTime:  true,
		}
		if err := writer.Rotate(); err != nil {
			return err
		}
		ws = zapcore.AddSync(writer)
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(loggerConfig.EncoderConfig),
		ws,
		level,
	)

	Logger = zap.New(core, zap.AddCaller())
	zap.RedirectStdLog(Logger)
	Log = Logger.Sugar()
	return nil
}

func UnInitLoggers() {
	// stdout sync returns EINVAL on some platforms, nothing to do about it
	_ = Log.Sync()
}

// Writer adapts the logger to io.Writer for stdlib consumers.
type Writer struct {
	LogFunc func(msg string, fields ...zapcore.Field)
}

func NewWriter() *Writer {
	return &Writer{LogFunc: Logger.WithOptions(
		zap.AddCallerSkip(2),
	).Info}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.LogFunc(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
