package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the process-wide logger shared by the controller, agent and CLI.
var Log = logrus.New()

func init() {
	Log.SetOutput(os.Stdout)
	Log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	Log.SetLevel(logrus.InfoLevel)
}

// SetLevel parses level and applies it, falling back to info on bad input.
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		Log.Warnf("Unknown log level %q, using info", level)
		parsed = logrus.InfoLevel
	}
	Log.SetLevel(parsed)
}

// WithJob returns an entry tagged with the job id and target host.
func WithJob(jobID, host string) *logrus.Entry {
	return Log.WithFields(logrus.Fields{"job_id": jobID, "host": host})
}
