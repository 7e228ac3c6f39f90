// Package utils provides utilities that are used in all sub-packages of driftline.
package utils

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	Log_debug = iota
	Log_info
	Log_warning
	Log_error //error一般用于输出一些 连接错误或者客户端协议错误之类的, 但不致命
	Log_fatal

	DefaultLL = Log_info
)

// LogLevel 值越小越唠叨, 值越大打印的越少; 默认是 info级别.
var (
	LogLevel       int = DefaultLL
	LogOutFileName string

	ZapLogger *zap.Logger
)

func init() {
	//子包的init会打印日志, 所以这里必须先给出一个可用的logger, 否则测试时会空指针
	InitLog("")
}

// InitLog 初始化 ZapLogger. 若 LogOutFileName 非空, 输出会同时写到 该文件,
// 并用 lumberjack 进行自动轮转.
func InitLog(firstLogMsg string) {
	atomicLevel := zap.NewAtomicLevel()
	atomicLevel.SetLevel(zapcore.Level(LogLevel - 1))

	var writes = []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}

	if LogOutFileName != "" {
		lj := &lumberjack.Logger{
			Filename:   LogOutFileName,
			MaxSize:    10, //megabytes
			MaxBackups: 3,
			MaxAge:     28, //days
		}
		writes = append(writes, zapcore.AddSync(lj))
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:  "msg",
		LevelKey:    "level",
		TimeKey:     "time",
		FunctionKey: "func",
		EncodeLevel: zapcore.CapitalColorLevelEncoder,
		EncodeTime:  zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05.000"),
		EncodeName:  zapcore.FullNameEncoder,
		LineEnding:  zapcore.DefaultLineEnding,
	}), zapcore.NewMultiWriteSyncer(writes...), atomicLevel)

	ZapLogger = zap.New(core)
	if firstLogMsg != "" {
		ZapLogger.Info(firstLogMsg)
	}
}

func CanLogLevel(l int, msg string) *zapcore.CheckedEntry {
	return ZapLogger.Check(zapcore.Level(l-1), msg)
}

func canLogLevel(l zapcore.Level, msg string) *zapcore.CheckedEntry {
	return ZapLogger.Check(l, msg)
}

func CanLogErr(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.ErrorLevel, msg)
}

func CanLogInfo(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.InfoLevel, msg)
}

func CanLogWarn(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.WarnLevel, msg)
}

func CanLogDebug(msg string) *zapcore.CheckedEntry {
	return canLogLevel(zap.DebugLevel, msg)
}

// Info logs the msg at info level with ZapLogger.
func Info(msg string) {
	ZapLogger.Info(msg)
}

// Error logs the msg at error level with ZapLogger.
func Error(msg string) {
	ZapLogger.Error(msg)
}

// Warn logs the msg at warn level with ZapLogger.
func Warn(msg string) {
	ZapLogger.Warn(msg)
}
