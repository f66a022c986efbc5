package server

import "github.com/pingcap/errors"

var (
	ErrUnknownSink = errors.New("unknown observer sink, expect stdout or log")
)
