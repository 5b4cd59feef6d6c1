package main

import (
	"context"

	"github.com/danmuck/framemux/internal/config"
	"github.com/danmuck/framemux/internal/mux"
	"github.com/danmuck/framemux/internal/protocol/codec"
)

// The CLI speaks the string -> int32 pair: the reference peer answers each
// request with its byte length.
type stringChannel = mux.Channel[string, int32]

func newStringChannel(cfg config.Config) (*stringChannel, error) {
	return mux.NewChannel[string, int32](cfg.Mux(), codec.String{}, codec.Int32{})
}

func strlenHandler(_ context.Context, req string) (int32, error) {
	return int32(len(req)), nil
}
