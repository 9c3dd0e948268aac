package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"git.solsynth.dev/hypernet/meet/pkg/meetkit"
	"git.solsynth.dev/hypernet/meet/pkg/meetkit/models"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

var (
	info    = color.New(color.FgCyan)
	warning = color.New(color.FgYellow, color.Bold)
	failure = color.New(color.FgRed, color.Bold)
	chat    = color.New(color.FgGreen)
)

func main() {
	if err := run(); err != nil {
		failure.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	home, _ := os.UserHomeDir()

	flagSet := pflag.NewFlagSet("attendee", pflag.ContinueOnError)
	flagSet.String("participant", "", "participant id from the session link")
	flagSet.String("backend", "http://localhost:8000/api", "booking backend base url")
	flagSet.String("relay", "ws://localhost:8447", "room relay base url")
	flagSet.String("state-dir", filepath.Join(home, ".meet"), "where the participant record is kept")
	flagSet.String("public-key", "", "PEM public key to check the grant before joining")
	flagSet.Bool("auto-join", false, "join as soon as the lobby opens")
	flagSet.Bool("debug", false, "verbose logging")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	viper.SetEnvPrefix("MEET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(flagSet); err != nil {
		return err
	}
	if viper.GetBool("debug") {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	input := readLines()

	store := meetkit.NewFileStore(viper.GetString("state-dir"))
	gate := meetkit.NewGate(
		viper.GetString("participant"),
		meetkit.NewBookingClient(viper.GetString("backend"), 10*time.Second),
		store,
	)
	if key := viper.GetString("public-key"); key != "" {
		gate.WithVerifier(meetkit.NewVerifier(key))
	}

	if err := gate.Load(ctx); err != nil {
		return showTerminal(gate.Screen(time.Now()))
	}

	if joined, err := lobby(ctx, gate, input); err != nil || !joined {
		return err
	}

	record, err := gate.EnterRoom()
	if err != nil {
		return err
	}

	session := meetkit.NewSession(meetkit.SessionConfig{
		RelayURL: viper.GetString("relay"),
		Record:   record,
	})
	views := session.Subscribe()

	result := make(chan error, 1)
	go func() { result <- session.Run(ctx) }()

	info.Printf("Joined %s as %s. Type to chat, /dismiss, /overlay or /quit.\n", record.RoomName, record.DisplayName)

	var last meetkit.SessionView
	for {
		select {
		case err := <-result:
			if err != nil {
				_ = gate.Fail(err)
			}
			view := gate.Screen(time.Now())
			if view.Screen == meetkit.ScreenEnd {
				end := meetkit.NewEndScreen(record.ParticipantIdentifier, gate.Context(), time.Now())
				end.End = lo.FromPtr(record.MeetingEndTime)
				info.Printf("Session ended. Rejoin available: %v\n", end.CanRejoin(time.Now()))
				return nil
			}
			if err != nil {
				return showTerminal(view)
			}
			return nil

		case view := <-views:
			render(last, view)
			last = view

		case line, ok := <-input:
			if !ok {
				input = nil
				cancel()
				continue
			}
			switch strings.TrimSpace(line) {
			case "":
			case "/quit":
				_ = store.Clear()
				cancel()
			case "/dismiss":
				if ok, _ := session.DismissWarning(ctx); !ok {
					warning.Println("This warning cannot be dismissed.")
				}
			case "/overlay":
				_ = session.ToggleOverlay(ctx)
			default:
				if err := session.SendChat(ctx, line); err != nil {
					warning.Printf("Message not sent: %v\n", err)
				}
			}
		}
	}
}

// lobby waits until the participant may join and they confirm.
func lobby(ctx context.Context, gate *meetkit.Gate, input <-chan string) (bool, error) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		view, changed := gate.Poll(time.Now())
		if view.Terminal() {
			return false, showTerminal(view)
		}
		if changed {
			switch {
			case view.CanJoin:
				info.Println("The session is open. Press Enter to join.")
			case view.Screen == meetkit.ScreenTooEarly:
				info.Println("This session is more than a day away, the lobby will open closer to the start.")
			default:
				countdown := view.Countdown
				info.Printf("Session starts in %dd %02dh %02dm %02ds.\n", countdown.Days, countdown.Hours, countdown.Minutes, countdown.Seconds)
			}
		}

		if view.CanJoin && viper.GetBool("auto-join") {
			_, err := gate.Join(time.Now())
			return err == nil, err
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-ticker.C:
		case _, ok := <-input:
			if !ok {
				return false, nil
			}
			if view.CanJoin {
				_, err := gate.Join(time.Now())
				return err == nil, err
			}
		}
	}
}

func showTerminal(view meetkit.GateView) error {
	failure.Printf("[%s] %s\n", view.Screen, view.Message)
	if len(view.Actions) > 0 {
		info.Printf("You can: %s\n", strings.Join(view.Actions, ", "))
	}
	return nil
}

func render(prev, next meetkit.SessionView) {
	for _, message := range next.Chat[len(prev.Chat):] {
		chat.Printf("%s: %s\n", message.From, message.Message)
	}
	for _, message := range next.Direct[len(prev.Direct):] {
		chat.Printf("(direct) %s: %s\n", message.From, message.Message)
	}
	if len(prev.Others) != len(next.Others) {
		names := lo.Map(next.Others, func(item models.Participant, _ int) string { return item.Name })
		info.Printf("In the room: %s\n", strings.Join(append([]string{"you"}, names...), ", "))
	}
	if next.Timer.ShowWarning && (!prev.Timer.ShowWarning || prev.Timer.Level != next.Timer.Level) {
		warning.Printf("Time left %s (%s)\n", next.Timer.TimeLeft, next.Timer.Level)
	}
	if next.Reconnect.Visible() && next.Reconnect != prev.Reconnect && !next.Reconnect.Collapsed {
		warning.Printf("Reconnecting... attempt %d of %d\n", next.Reconnect.Attempt, next.Reconnect.MaxAttempts)
	} else if !next.Reconnect.Visible() && prev.Reconnect.Visible() {
		info.Println("Connection restored.")
	}
	if next.MicMuted && !prev.MicMuted {
		warning.Println("The host muted your microphone.")
	}
	if next.Notice != "" && next.Notice != prev.Notice {
		warning.Printf("Relay: %s\n", next.Notice)
	}
}

func readLines() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}
