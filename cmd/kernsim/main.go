// kernsim boots the simulated kernel and runs a scripted user program that
// exercises every file system call through the processor registers.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"kernsim/pkg/config"
	"kernsim/pkg/kernel"
)

func main() {
	configPath := flag.String("config", "", "Path to a JSON configuration file")
	logLevel := flag.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	message := flag.String("message", "hello", "Text the program writes to its file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	k, err := kernel.Boot(cfg, kernel.WithLoader(programs()))
	if err != nil {
		log.Fatalf("Failed to boot kernel: %v", err)
	}

	fmt.Println("=== kernsim ===")
	fmt.Printf("Physical pages: %d x %d bytes, paging: %s, filesystem: %s\n",
		cfg.NumPhysPages, cfg.PageSize, cfg.Paging, cfg.FileSystem)

	if err := runDemo(k, os.Stdout, *message); err != nil {
		log.Printf("Program stopped: %v", err)
	}

	if err := k.Shutdown(); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
	if k.Frames() != nil {
		fmt.Printf("Free frames after shutdown: %d/%d\n", k.Frames().Free(), k.Frames().Total())
	}
}
