package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicslots/services/scheduling-service/internal/model"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "slotctl",
		Short:        "Inspect clinic slots and appointment spans",
		SilenceUsage: true,
	}
	root.AddCommand(slotsCmd())
	root.AddCommand(spanCmd())
	return root
}

// bindFlags lets every flag also come from SLOTCTL_<FLAG> in the environment.
func bindFlags(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("SLOTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	return v, bindErr
}

func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print the annotated slot list for a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bindFlags(cmd)
			if err != nil {
				return err
			}
			loc, err := time.LoadLocation(v.GetString("tz"))
			if err != nil {
				return err
			}
			date, err := availability.ParseDate(v.GetString("date"))
			if err != nil {
				return err
			}

			var records []availability.RuleRecord
			if err := readJSON(v.GetString("rules"), &records); err != nil {
				return fmt.Errorf("rules: %w", err)
			}
			var appts []appointmentInput
			if path := v.GetString("appointments"); path != "" {
				if err := readJSON(path, &appts); err != nil {
					return fmt.Errorf("appointments: %w", err)
				}
			}

			cfg := availability.SlotConfig{
				IntervalMinutes:  v.GetInt("interval"),
				AllowOverbooking: v.GetBool("overbooking"),
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
			day := availability.NewEngine(loc, logger).Day(date, records, toAppointments(appts), cfg)
			if v.GetBool("json") {
				return writeJSON(cmd.OutOrStdout(), day)
			}
			return printDay(cmd.OutOrStdout(), day)
		},
	}
	cmd.Flags().String("rules", "", "JSON file with window rules")
	cmd.Flags().String("appointments", "", "JSON file with appointments")
	cmd.Flags().String("date", "", "date as YYYY-MM-DD")
	cmd.Flags().Int("interval", availability.DefaultIntervalMinutes, "slot interval in minutes")
	cmd.Flags().Bool("overbooking", false, "keep occupied slots selectable")
	cmd.Flags().String("tz", "UTC", "clinic timezone")
	cmd.Flags().Bool("json", false, "print JSON")
	return cmd
}

func spanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "span",
		Short: "Print the start and end of an appointment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bindFlags(cmd)
			if err != nil {
				return err
			}
			loc, err := time.LoadLocation(v.GetString("tz"))
			if err != nil {
				return err
			}
			durations, err := parseDurations(v.GetString("durations"))
			if err != nil {
				return err
			}
			span, err := booking.ComputeAppointmentSpan(v.GetString("date"), v.GetString("time"), durations, loc)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "start\t%s\nend\t%s\nminutes\t%d\n",
				span.Start.Format(time.RFC3339), span.End.Format(time.RFC3339), int(span.Duration().Minutes()))
			return err
		},
	}
	cmd.Flags().String("date", "", "date as YYYY-MM-DD")
	cmd.Flags().String("time", "", "start time as HH:MM")
	cmd.Flags().String("durations", "", "comma separated service durations in minutes")
	cmd.Flags().String("tz", "UTC", "clinic timezone")
	return cmd
}

type appointmentInput struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    string    `json:"status"`
}

func toAppointments(in []appointmentInput) []model.Appointment {
	out := make([]model.Appointment, 0, len(in))
	for _, a := range in {
		status := model.Status(a.Status)
		if status == "" {
			status = model.StatusConfirmed
		}
		if status == model.StatusCancelled {
			continue
		}
		out = append(out, model.Appointment{ID: a.ID, StartTime: a.StartTime, EndTime: a.EndTime, Status: status})
	}
	return out
}

func parseDurations(raw string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid duration %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func readJSON(path string, v any) error {
	if path == "" {
		return fmt.Errorf("file is required")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func writeJSON(w io.Writer, day availability.Day) error {
	type slotOut struct {
		Time          availability.Clock `json:"time"`
		Occupied      bool               `json:"occupied"`
		Selectable    bool               `json:"selectable"`
		AppointmentID string             `json:"appointment_id,omitempty"`
	}
	out := struct {
		Date         availability.Date     `json:"date"`
		State        availability.DayState `json:"state"`
		Slots        []slotOut             `json:"slots"`
		InvalidRules []string              `json:"invalid_rules"`
	}{Date: day.Date, State: day.State, Slots: []slotOut{}, InvalidRules: []string{}}
	for _, s := range day.Slots {
		so := slotOut{Time: s.Time, Occupied: s.Occupied, Selectable: s.Selectable}
		if s.Appointment != nil {
			so.AppointmentID = s.Appointment.ID
		}
		out.Slots = append(out.Slots, so)
	}
	for _, ie := range day.Invalid {
		out.InvalidRules = append(out.InvalidRules, ie.Error())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printDay(w io.Writer, day availability.Day) error {
	fmt.Fprintf(w, "%s %s\n", day.Date, day.State)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, s := range day.Slots {
		mark := "free"
		if s.Occupied {
			mark = "occupied"
			if s.Appointment != nil {
				mark += " (" + s.Appointment.ID + ")"
			}
		}
		selectable := "no"
		if s.Selectable {
			selectable = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Time, mark, selectable)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, ie := range day.Invalid {
		fmt.Fprintf(w, "invalid rule: %s\n", ie.Error())
	}
	return nil
}
