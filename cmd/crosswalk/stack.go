package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/config"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/events"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/monitoring"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/narration"
	"github.com/IshaVasanth24/SmartCrosswalkAssistant/internal/serialmux"
)

// outputFlags select where alerts are spoken and where events are
// published. serve and replay share them.
type outputFlags struct {
	narrator      string
	serialPort    string
	kafkaBrokers  string
	kafkaTopic    string
	kafkaVerdicts bool
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.narrator, "narrator", "", "alert narrator: log, command or device (default from config)")
	cmd.Flags().StringVar(&o.serialPort, "serial-port", "", "speech module serial port, or \"emulator\" (default from config)")
	cmd.Flags().StringVar(&o.kafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers; empty disables publishing (env CROSSWALK_KAFKA_BROKERS)")
	cmd.Flags().StringVar(&o.kafkaTopic, "kafka-topic", events.DefaultTopic, "Kafka topic for crosswalk events")
	cmd.Flags().BoolVar(&o.kafkaVerdicts, "kafka-verdicts", false, "publish every frame verdict, not only alerts")
}

func (o *outputFlags) applyEnv(cmd *cobra.Command) error {
	return applyEnv(cmd, "kafka-brokers", "CROSSWALK_KAFKA_BROKERS")
}

// outputs are the narrator, speech device and event sink built from
// outputFlags. Close releases them.
type outputs struct {
	Narrator narration.Narrator
	Speech   serialmux.SerialMuxInterface
	Sink     events.Sink

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// buildOutputs opens the configured narrator and sink. A device narrator
// starts the speech module's monitor loop, which runs until Close.
func buildOutputs(ctx context.Context, c *config.CrosswalkConfig, o outputFlags) (*outputs, error) {
	out := &outputs{cancel: func() {}}

	kind := o.narrator
	if kind == "" {
		kind = c.GetNarrator()
	}
	switch kind {
	case config.NarratorLog:
		out.Narrator = narration.NewLogNarrator(monitoring.Component("narrator"))
	case config.NarratorCommand:
		program := c.GetSpeechCommand()
		if program == "" {
			return nil, errors.New("command narrator needs speech_command in the config")
		}
		out.Narrator = narration.NewCommandNarrator(program)
	case config.NarratorDevice:
		if err := out.openSpeech(ctx, c, o.serialPort); err != nil {
			return nil, err
		}
		out.Narrator = narration.NewDeviceNarrator(out.Speech, c.GetDeviceLanguages()...)
	default:
		return nil, fmt.Errorf("unknown narrator %q", kind)
	}

	sink, err := buildSink(o, monitoring.Component("events"))
	if err != nil {
		out.Close()
		return nil, err
	}
	out.Sink = sink
	return out, nil
}

func (out *outputs) openSpeech(ctx context.Context, c *config.CrosswalkConfig, port string) error {
	if port == "" {
		port = c.GetSerialPort()
	}
	mux, err := serialmux.Open(port, serialmux.PortOptions{BaudRate: c.GetSerialBaud()})
	if err != nil {
		return fmt.Errorf("open speech module on %s: %w", port, err)
	}
	l := monitoring.Component("speech")

	monCtx, cancel := context.WithCancel(ctx)
	out.Speech = mux
	out.cancel = cancel
	out.wg.Add(1)
	go func() {
		defer out.wg.Done()
		if err := mux.Monitor(monCtx); err != nil && !errors.Is(err, context.Canceled) {
			l.Error().Err(err).Msg("speech module monitor stopped")
		}
	}()

	settings := serialmux.SpeechSettings{Volume: c.GetSpeechVolume(), Rate: c.GetSpeechRate()}
	if err := mux.Initialize(settings); err != nil {
		out.Close()
		return fmt.Errorf("initialize speech module: %w", err)
	}
	l.Info().Str("port", port).Int("volume", settings.Volume).Int("rate", settings.Rate).Msg("speech module ready")
	return nil
}

func buildSink(o outputFlags, l zerolog.Logger) (events.Sink, error) {
	brokers := splitList(o.kafkaBrokers)
	if len(brokers) == 0 {
		return events.NopSink{}, nil
	}
	return events.NewKafkaSink(events.KafkaConfig{
		Brokers:         brokers,
		Topic:           o.kafkaTopic,
		VerdictsEnabled: o.kafkaVerdicts,
	}, l)
}

// Close stops the speech monitor and flushes the sink.
func (out *outputs) Close() error {
	var errs []error
	if out.Sink != nil {
		errs = append(errs, out.Sink.Close())
	}
	if out.Speech != nil {
		errs = append(errs, out.Speech.Close())
	}
	out.cancel()
	out.wg.Wait()
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
