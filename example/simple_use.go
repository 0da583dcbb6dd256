package main

import (
	"fmt"
	"os"

	"github.com/leandrodaf/alsaseq/internal/logger"
	"github.com/leandrodaf/alsaseq/sdk/contracts"
	"github.com/leandrodaf/alsaseq/sdk/seq"
)

func main() {
	log := logger.NewZapLogger()

	client, err := seq.NewSequencerClient(
		contracts.WithLogger(log),
		contracts.WithLogLevel(contracts.InfoLevel),
		contracts.WithClientName("Sequencer Example"),
	)
	if err != nil {
		log.Error("Failed to open sequencer client", log.Field().Error("error", err))
		return
	}
	defer client.Close()

	ports, err := client.ListPorts()
	if err != nil || len(ports) == 0 {
		log.Error("No sequencer ports found or error listing ports", log.Field().Error("error", err))
		return
	}
	fmt.Println("Available sequencer ports:")
	for _, p := range ports {
		fmt.Printf("  %-7s %s / %s\n", p.Addr, p.ClientName, p.Name)
	}
	if len(os.Args) < 2 {
		fmt.Println("Usage: simple_use <client:port>")
		return
	}

	source, err := client.ParseAddress(os.Args[1])
	if err != nil {
		log.Error("Failed to resolve source address", log.Field().Error("error", err))
		return
	}

	in, err := client.CreatePort("input", contracts.ReadPort, 0)
	if err != nil {
		log.Error("Failed to create input port", log.Field().Error("error", err))
		return
	}
	if err := client.Subscribe(contracts.Subscription{Sender: source, Dest: in}); err != nil {
		log.Error("Failed to connect ports", log.Field().Error("error", err))
		return
	}

	fmt.Printf("Reading events from %s... Press Ctrl+C to exit.\n", source)
	for {
		ev, err := client.Read()
		if err != nil {
			log.Error("Read failed", log.Field().Error("error", err))
			return
		}
		switch data := ev.Data.(type) {
		case contracts.NoteData:
			log.Info("note event",
				log.Field().Uint8("type", uint8(ev.Type)),
				log.Field().Uint8("note", data.Note),
				log.Field().Uint8("velocity", data.Velocity),
			)
		case contracts.ControlData:
			log.Info("control event",
				log.Field().Uint8("channel", data.Channel),
				log.Field().Uint64("param", uint64(data.Param)),
				log.Field().Int64("value", int64(data.Value)),
			)
		default:
			log.Info("event", log.Field().Uint8("type", uint8(ev.Type)))
		}
	}
}
