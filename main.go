package main

import (
	"github.com/YasiruR/mule-sync/cli"
	"github.com/tryfix/log"
)

func main() {
	args := cli.ParseArgs()
	cfg := setConfigs(args)
	c, err := initContainer(cfg)
	if err != nil {
		log.Fatal(err)
	}

	cli.Init(c)
}
