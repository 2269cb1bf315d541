package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/medportal/portal/pkg/client"
	"github.com/medportal/portal/pkg/poll"
	"github.com/medportal/portal/pkg/session"
)

func roleArg(args []string) (session.Role, error) {
	return session.ParseRole(args[0])
}

func (a *app) loginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "login <patient|hospital|doctor|lab>",
		Short:     "Sign in and store the session",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"patient", "hospital", "doctor", "lab"},
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := roleArg(args)
			if err != nil {
				return err
			}
			email, _ := cmd.Flags().GetString("email")
			password, _ := cmd.Flags().GetString("password")
			if password == "" {
				a.printf("Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
				a.printf("\n")
			}
			if err := signIn(cmd.Context(), a, role, email, password); err != nil {
				return err
			}
			a.printf("Signed in as %s.\n", role)
			return nil
		},
	}
	cmd.Flags().String("email", "", "Account email")
	cmd.Flags().String("password", "", "Account password (prompted when empty)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <role>",
		Short: "Revoke and forget the stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := roleArg(args)
			if err != nil {
				return err
			}
			had, err := signOut(cmd.Context(), a, role)
			if !had && err == nil {
				a.printf("No %s session.\n", role)
				return nil
			}
			if err != nil {
				return fmt.Errorf("local session cleared, server logout failed: %w", err)
			}
			a.printf("Signed out of %s.\n", role)
			return nil
		},
	}
}

func (a *app) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami <role>",
		Short: "Show the stored profile for a role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := roleArg(args)
			if err != nil {
				return err
			}
			s, err := restore[json.RawMessage](cmd.Context(), a, role)
			if err != nil {
				return err
			}
			a.printf("%s %s\n", s.Role, string(s.Profile))
			return nil
		},
	}
}

func (a *app) printBookings(bookings []client.Booking) {
	if len(bookings) == 0 {
		a.printf("No bookings.\n")
		return
	}
	a.printf("%-26s %-28s %-10s %-12s %s\n", "ID", "TEST", "STATUS", "DATE", "DOCTOR")
	for _, b := range bookings {
		a.printf("%-26s %-28s %-10s %-12s %s\n", b.ID, b.TestName, b.Status, b.BookingDate.Format("2006-01-02"), b.Doctor)
	}
}

func (a *app) labCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lab",
		Short: "Lab workspace",
	}

	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "List bookings waiting for a lab response",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := restore[client.Lab](cmd.Context(), a, session.Lab)
			if err != nil {
				return err
			}
			c := a.client(s.Token)
			fetch := func(ctx context.Context) ([]client.Booking, error) {
				return c.PendingBookings(ctx, s.Profile.ID)
			}

			watch, _ := cmd.Flags().GetBool("watch")
			if !watch {
				bookings, err := fetch(cmd.Context())
				if err != nil {
					return err
				}
				a.printBookings(bookings)
				return nil
			}

			p := poll.New(fetch,
				poll.WithInterval[[]client.Booking](a.pollInterval()),
				poll.OnResult(func(bookings []client.Booking) {
					a.printf("-- %s --\n", time.Now().Format("15:04:05"))
					a.printBookings(bookings)
				}),
				poll.OnError[[]client.Booking](func(err error) {
					a.printf("refresh failed: %v\n", err)
				}),
			)
			// Run only returns once the context ends, which is how a watch stops.
			if err := p.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return nil
		},
	}
	pendingCmd.Flags().Bool("watch", false, "Keep refreshing until interrupted")
	cmd.AddCommand(pendingCmd)

	testsCmd := &cobra.Command{
		Use:   "tests",
		Short: "List bookings this lab has accepted",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := restore[client.Lab](cmd.Context(), a, session.Lab)
			if err != nil {
				return err
			}
			bookings, err := a.client(s.Token).LabTests(cmd.Context(), s.Profile.ID)
			if err != nil {
				return err
			}
			a.printBookings(bookings)
			return nil
		},
	}
	cmd.AddCommand(testsCmd)

	acceptCmd := &cobra.Command{
		Use:   "accept <bookingId>",
		Short: "Accept a pending booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := restore[client.Lab](cmd.Context(), a, session.Lab)
			if err != nil {
				return err
			}
			doctor, _ := cmd.Flags().GetString("doctor")
			labName, _ := cmd.Flags().GetString("lab-name")
			if !cmd.Flags().Changed("lab-name") {
				labName = s.Profile.LabName
			}
			b, err := a.client(s.Token).AcceptBooking(cmd.Context(), args[0], doctor, labName)
			if err != nil {
				return err
			}
			a.printf("Accepted %s, status %s.\n", b.ID, b.Status)
			return nil
		},
	}
	acceptCmd.Flags().String("doctor", "", "Doctor handling the test")
	acceptCmd.Flags().String("lab-name", "", "Lab name shown to the patient (defaults to the signed-in lab)")
	cmd.AddCommand(acceptCmd)

	rejectCmd := &cobra.Command{
		Use:   "reject <bookingId>",
		Short: "Decline a pending booking for this lab",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := restore[client.Lab](cmd.Context(), a, session.Lab)
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			if _, err := a.client(s.Token).RejectBooking(cmd.Context(), args[0], reason); err != nil {
				return err
			}
			a.printf("Rejected %s.\n", args[0])
			return nil
		},
	}
	rejectCmd.Flags().String("reason", "", "Reason given to the patient")
	cmd.AddCommand(rejectCmd)

	reportCmd := &cobra.Command{
		Use:   "report <bookingId>",
		Short: "Generate the report for a started test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := restore[client.Lab](cmd.Context(), a, session.Lab)
			if err != nil {
				return err
			}
			var req client.ReportRequest
			req.UseAI, _ = cmd.Flags().GetBool("ai")
			req.Prompt, _ = cmd.Flags().GetString("prompt")
			req.Diagnosis, _ = cmd.Flags().GetString("diagnosis")
			req.Recommendations, _ = cmd.Flags().GetString("recommendations")
			req.AuthorizedBy, _ = cmd.Flags().GetString("authorized-by")

			d, err := a.client(s.Token).GenerateReport(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			a.printf("Report generated for %s (status %s).\n", d.ID, d.Status)
			if d.Report != nil {
				a.printf("Diagnosis: %s\n", d.Report.Diagnosis)
				for _, p := range d.Report.Parameters {
					a.printf("  %-20s %-10s %-8s %-14s %s\n", p.Name, p.Value, p.Unit, p.Range, p.Status)
				}
			}
			return nil
		},
	}
	reportCmd.Flags().Bool("ai", false, "Draft the report with the AI model")
	reportCmd.Flags().String("prompt", "", "Extra instructions for the AI draft")
	reportCmd.Flags().String("diagnosis", "", "Diagnosis text")
	reportCmd.Flags().String("recommendations", "", "Recommendations text")
	reportCmd.Flags().String("authorized-by", "", "Signing technician")
	cmd.AddCommand(reportCmd)

	return cmd
}

func (a *app) appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "appointments",
		Aliases: []string{"appt"},
		Short:   "Patient appointments",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List your appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := restore[client.User](cmd.Context(), a, session.Patient)
			if err != nil {
				return err
			}
			appts, err := a.client(s.Token).MyAppointments(cmd.Context())
			if err != nil {
				return err
			}
			if len(appts) == 0 {
				a.printf("No appointments.\n")
				return nil
			}
			a.printf("%-26s %-12s %-10s %-10s %s\n", "ID", "DATE", "SLOT", "STATUS", "FEE")
			for _, ap := range appts {
				a.printf("%-26s %-12s %-10s %-10s %.2f\n", ap.ID, ap.AppointmentDate.Format("2006-01-02"), ap.TimeSlot, ap.Status, ap.ConsultationFee)
			}
			return nil
		},
	})

	bookCmd := &cobra.Command{
		Use:   "book <doctorId>",
		Short: "Book an appointment with a doctor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := restore[client.User](cmd.Context(), a, session.Patient)
			if err != nil {
				return err
			}
			req := client.BookAppointment{DoctorID: args[0], PatientName: s.Profile.Name, PatientEmail: s.Profile.Email}
			req.AppointmentDate, _ = cmd.Flags().GetString("date")
			req.TimeSlot, _ = cmd.Flags().GetString("slot")
			ap, err := a.client(s.Token).BookAppointment(cmd.Context(), req)
			if err != nil {
				return err
			}
			a.printf("Booked %s, status %s.\n", ap.ID, ap.Status)
			return nil
		},
	}
	bookCmd.Flags().String("date", "", "Appointment date (YYYY-MM-DD)")
	bookCmd.Flags().String("slot", "", "Time slot")
	_ = bookCmd.MarkFlagRequired("date")
	cmd.AddCommand(bookCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := restore[client.User](cmd.Context(), a, session.Patient)
			if err != nil {
				return err
			}
			ap, err := a.client(s.Token).CancelAppointment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.printf("Appointment %s is %s.\n", ap.ID, ap.Status)
			return nil
		},
	})

	return cmd
}

func (a *app) testsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tests",
		Short: "Patient lab tests",
	}

	bookCmd := &cobra.Command{
		Use:   "book <testId>",
		Short: "Book a lab test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := restore[client.User](cmd.Context(), a, session.Patient)
			if err != nil {
				return err
			}
			date, _ := cmd.Flags().GetString("date")
			notes, _ := cmd.Flags().GetString("notes")
			b, err := a.client(s.Token).BookTest(cmd.Context(), args[0], date, notes)
			if err != nil {
				return err
			}
			a.printf("Booked %s (%s), status %s.\n", b.ID, b.TestName, b.Status)
			return nil
		},
	}
	bookCmd.Flags().String("date", "", "Booking date (YYYY-MM-DD)")
	bookCmd.Flags().String("notes", "", "Notes for the lab")
	_ = bookCmd.MarkFlagRequired("date")
	cmd.AddCommand(bookCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "booked",
		Short: "List your booked tests and reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := restore[client.User](cmd.Context(), a, session.Patient)
			if err != nil {
				return err
			}
			details, err := a.client(s.Token).BookedTests(cmd.Context(), s.Profile.ID)
			if err != nil {
				return err
			}
			bookings := make([]client.Booking, 0, len(details))
			for _, d := range details {
				bookings = append(bookings, d.Booking)
			}
			a.printBookings(bookings)
			return nil
		},
	})

	return cmd
}

func (a *app) aiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ai",
		Short: "AI assistant",
	}
	insightCmd := &cobra.Command{
		Use:   "insight <prompt>",
		Short: "Ask the AI assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			as, _ := cmd.Flags().GetString("as")
			role, err := session.ParseRole(as)
			if err != nil {
				return err
			}
			s, err := restore[json.RawMessage](cmd.Context(), a, role)
			if err != nil {
				return err
			}
			text, err := a.client(s.Token).Insight(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			a.printf("%s\n", strings.TrimSpace(text))
			return nil
		},
	}
	insightCmd.Flags().String("as", string(session.Patient), "Role whose session is used")
	cmd.AddCommand(insightCmd)
	return cmd
}
