package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/siddontang/go-log/log"
	"github.com/tsywkGo/go-mysql-materialize/replicator"
)

var configFile = flag.String("config", "./cmd/config/replicator.toml", "replicator config file")

func main() {
	flag.Parse()

	cfg, err := replicator.NewConfigWithFile(*configFile)
	if err != nil {
		log.Fatalf("new replicator config error:%s", err)
	}
	r, err := replicator.New(cfg)
	if err != nil {
		log.Fatalf("new replicator error:%s", err)
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sc
		r.Close()
	}()

	if err := r.Run(); err != nil {
		log.Fatalf("run replicator error:%s", err)
	}
}
