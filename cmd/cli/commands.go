package main

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

func domainCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "domain", Short: "Provision monitored domains (admin key)"}

	var (
		label       string
		sensitivity int
		noCert      bool
	)
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a domain and run its first certificate check",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"name":        args[0],
				"sensitivity": sensitivity,
				"ssl_enabled": !noCert,
			}
			if label != "" {
				body["label"] = label
			}
			return call(cmd.OutOrStdout(), http.MethodPost, "/domains", body)
		},
	}
	add.Flags().StringVar(&label, "label", "", "Human-readable label")
	add.Flags().IntVar(&sensitivity, "sensitivity", 0, "Seconds a failure must persist before the prober reports down")
	add.Flags().BoolVar(&noCert, "no-ssl", false, "Disable certificate expiry monitoring")

	list := &cobra.Command{
		Use:   "list",
		Short: "List domains with their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.OutOrStdout(), http.MethodGet, "/domains", nil)
		},
	}
	rm := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return call(cmd.OutOrStdout(), http.MethodDelete, "/domains/"+id, nil)
		},
	}
	cert := &cobra.Command{
		Use:   "check-ssl <id>",
		Short: "Check a domain's certificate now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return call(cmd.OutOrStdout(), http.MethodPost, "/domains/"+id+"/check-ssl", nil)
		},
	}

	cmd.AddCommand(add, list, rm, cert)
	return cmd
}

func eventCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "event", Short: "Post a down/up signal for a domain"}

	for _, kind := range []string{"down", "up"} {
		kind := kind
		var at string
		c := &cobra.Command{
			Use:   kind + " <domain-id>",
			Short: "Report the domain " + kind,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("domain id must be a positive integer, got %q", args[0])
				}
				detected := time.Now().UTC()
				if at != "" {
					if detected, err = time.Parse(time.RFC3339, at); err != nil {
						return fmt.Errorf("--at: %w", err)
					}
				}
				return call(cmd.OutOrStdout(), http.MethodPost, "/events/"+kind, map[string]any{
					"domain_id":   id,
					"detected_at": detected.Format(time.RFC3339),
				})
			},
		}
		c.Flags().StringVar(&at, "at", "", "Detection time (RFC3339), defaults to now")
		cmd.AddCommand(c)
	}
	return cmd
}

func deviceCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "device", Short: "Manage push receivers"}

	var platform string
	reg := &cobra.Command{
		Use:   "register <token>",
		Short: "Register a device token for push notifications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.OutOrStdout(), http.MethodPost, "/devices/register", map[string]string{
				"token":    args[0],
				"platform": platform,
			})
		},
	}
	reg.Flags().StringVar(&platform, "platform", "", "android, ios or web")
	cmd.AddCommand(reg)
	return cmd
}

func analyticsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "analytics", Short: "Query reliability statistics"}

	today := &cobra.Command{
		Use:   "today",
		Short: "Incidents and downtime since local midnight",
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd.OutOrStdout(), http.MethodGet, "/analytics/today", nil)
		},
	}

	var days int
	dom := &cobra.Command{
		Use:   "domain <id>",
		Short: "MTTR, MTBF, uptime and buckets for one domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return call(cmd.OutOrStdout(), http.MethodGet, "/analytics/domain/"+id+"?days="+strconv.Itoa(days), nil)
		},
	}
	dom.Flags().IntVar(&days, "days", 7, "Window: 1, 7 or 30")

	cmd.AddCommand(today, dom)
	return cmd
}

func parseID(s string) (string, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("id must be a positive integer, got %q", s)
	}
	return strconv.FormatInt(id, 10), nil
}
