package cluster

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// raftLogger returns log named for Raft, or a logger that drops everything.
func raftLogger(log hclog.Logger) hclog.Logger {
	if log != nil {
		return log.Named("raft")
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  hclog.Off,
		Output: io.Discard,
	})
}
