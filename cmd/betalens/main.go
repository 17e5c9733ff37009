package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

const version = "v1.0.0"

func main() {
	opts := &rootOptions{}
	err := newRootCmd(opts).Execute()
	opts.close()
	if err != nil {
		log.Error().Err(err).Msg("betalens failed")
		os.Exit(1)
	}
}
