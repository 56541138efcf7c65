// Copyright (c) 2026 Oarsense
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// rowctl is the control CLI: it publishes session and calibration commands
// to the monitor's control topic and can inspect live metrics and stored
// session history.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/spf13/cobra"

	"github.com/oarsense/rowmon/internal/app"
	"github.com/oarsense/rowmon/internal/config"
	"github.com/oarsense/rowmon/internal/engine"
	"github.com/oarsense/rowmon/internal/history"
)

var configPath string

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rowctl",
		Short:         "Control and inspect the rowmon monitor",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.InitGlobal(configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "rowmon.toml", "path to config file")

	session := &cobra.Command{Use: "session", Short: "Session control"}
	session.AddCommand(
		actionCmd("start", "Start a new session", app.ActionSessionStart),
		actionCmd("end", "End the session and persist it", app.ActionSessionEnd),
		actionCmd("pause", "Pause session time", app.ActionPause),
		actionCmd("resume", "Resume session time", app.ActionResume),
		actionCmd("reset", "Reset metrics (drag calibration survives)", app.ActionReset),
	)

	cal := &cobra.Command{Use: "cal", Short: "Inertia calibration control"}
	cal.AddCommand(
		actionCmd("start", "Arm the spin-up/spin-down measurement", app.ActionCalStart),
		actionCmd("cancel", "Abort the measurement", app.ActionCalCancel),
		actionCmd("apply", "Apply a completed measurement", app.ActionCalApply),
	)

	drag := &cobra.Command{Use: "drag", Short: "Drag calibration control"}
	drag.AddCommand(
		actionCmd("reset", "Restart drag calibration from the configured coefficient", app.ActionDragReset),
	)

	root.AddCommand(session, cal, drag, newStatusCmd(), newHistoryCmd())
	return root
}

// actionCmd builds a command that publishes one control action and exits.
func actionCmd(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return publishAction(action)
		},
	}
}

func publishAction(action string) error {
	cfg := config.Get()

	client, err := connect(cfg)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	payload, err := json.Marshal(app.Command{Action: action})
	if err != nil {
		return err
	}

	if token := client.Publish(cfg.Topics.Control, 1, false, payload); token.Wait() && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", action, token.Error())
	}

	fmt.Printf("sent %s\n", action)
	return nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the latest metrics snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()

			client, err := connect(cfg)
			if err != nil {
				return err
			}
			defer client.Disconnect(250)

			// The metrics topic is retained, so one message arrives promptly.
			got := make(chan engine.Metrics, 1)
			token := client.Subscribe(cfg.Topics.Metrics, 0, func(_ mqtt.Client, msg mqtt.Message) {
				var m engine.Metrics
				if err := json.Unmarshal(msg.Payload(), &m); err != nil {
					return
				}
				select {
				case got <- m:
				default:
				}
			})
			token.Wait()
			if token.Error() != nil {
				return token.Error()
			}

			select {
			case m := <-got:
				printStatus(m)
				return nil
			case <-time.After(5 * time.Second):
				return fmt.Errorf("no metrics received; is the monitor running?")
			}
		},
	}
}

func printStatus(m engine.Metrics) {
	fmt.Printf("phase:      %s\n", m.Stroke.Phase)
	fmt.Printf("elapsed:    %s (paused: %v)\n", m.Session.Elapsed.Round(time.Second), m.Session.Paused)
	fmt.Printf("distance:   %.1f m\n", m.Distance.Total)
	fmt.Printf("pace:       %s avg, %s best\n", paceString(m.Distance.Average), paceString(m.Distance.Best))
	fmt.Printf("power:      %.0f W (peak %.0f W)\n", m.Power.Display, m.Power.Peak)
	fmt.Printf("strokes:    %d at %.1f spm\n", m.Stroke.Count, m.Stroke.Rate)
	fmt.Printf("calories:   %.1f kcal (%.0f/h)\n", m.Calories.Total, m.Calories.PerHour)
	fmt.Printf("drag:       %.1f (%d samples, complete: %v)\n", m.Drag.Factor, m.Drag.SampleCount, m.Drag.Complete)
	fmt.Printf("inertia:    %.4f kg*m^2\n", m.MomentOfInertia)
	if m.Calibration.State != engine.CalIdle {
		fmt.Printf("calibration: %s (%s)\n", m.Calibration.State, m.Calibration.StatusMessage)
	}
}

func paceString(pace float64) string {
	if pace <= 0 || pace >= engine.PaceUnavailable {
		return "-:--"
	}
	min := int(pace) / 60
	sec := pace - float64(min*60)
	return fmt.Sprintf("%d:%04.1f/500m", min, sec)
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()

			store, err := history.Open(cfg.History.DBPath)
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.RecentSessions(limit)
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Println("no sessions stored")
				return nil
			}

			for _, s := range sessions {
				fmt.Printf("#%d  %s  %6.0fm  %s  %4d strokes  %4.0fW  %5.1f kcal\n",
					s.ID,
					s.StartedAt.Format("2006-01-02 15:04"),
					s.DistanceM,
					paceString(s.AvgPace),
					s.Strokes,
					s.AvgPower,
					s.Calories,
				)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to list")
	return cmd
}

func connect(cfg *config.Config) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTT.Broker).
		SetClientID(cfg.MQTT.ClientIDCtl)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect: %w", token.Error())
	}
	return client, nil
}
