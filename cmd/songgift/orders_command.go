package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/songgift/internal/delivery"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	eventdomain "github.com/smallbiznis/songgift/internal/orderevent/domain"
	"github.com/smallbiznis/songgift/internal/scheduler"
	"github.com/spf13/cobra"
)

func newOrdersCommand() *cobra.Command {
	ordersCmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect orders and run operator actions",
	}

	ordersCmd.AddCommand(newOrdersListCommand())
	ordersCmd.AddCommand(newOrdersRetryCommand())
	ordersCmd.AddCommand(newOrdersResendCommand())
	ordersCmd.AddCommand(newOrdersEventsCommand())

	return ordersCmd
}

func newOrdersListCommand() *cobra.Command {
	var (
		status         string
		deliveryStatus string
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var orders orderdomain.Service
			return withComponents(cmd, func(ctx context.Context) error {
				resp, err := orders.List(ctx, orderdomain.ListOrderRequest{
					PageSize:       limit,
					Status:         status,
					DeliveryStatus: deliveryStatus,
				})
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(resp.Orders))
				for _, o := range resp.Orders {
					rows = append(rows, []string{
						o.ID.String(),
						o.Input.RecipientName,
						string(o.Status),
						string(o.DeliveryStatus),
						strconv.Itoa(len(o.TrackMetadata.AllTracks())),
						o.CreatedAt.UTC().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Recipient", "Status", "Delivery", "Tracks", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			}, &orders)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (created, processing, completed, failed)")
	cmd.Flags().StringVar(&deliveryStatus, "delivery-status", "", "Filter by delivery status")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum orders to show")
	return cmd
}

func newOrdersRetryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "retry <order-id>",
		Short: "Reset generation so the worker starts the order over",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var sched *scheduler.Scheduler
			return withComponents(cmd, func(ctx context.Context) error {
				order, err := sched.RetryOrder(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "order %s reset to %s\n", order.ID, order.Status)
				return nil
			}, &sched)
		},
	}
}

func newOrdersResendCommand() *cobra.Command {
	var email, whatsapp bool

	cmd := &cobra.Command{
		Use:   "resend <order-id>",
		Short: "Resend delivery channels for a completed order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := delivery.DeliverOptions{ForceEmail: email, ForceWhatsApp: whatsapp}
			if !email && !whatsapp {
				opts = delivery.DeliverOptions{ForceEmail: true, ForceWhatsApp: true}
			}

			var sched *scheduler.Scheduler
			return withComponents(cmd, func(ctx context.Context) error {
				result, err := sched.ResendOrder(ctx, args[0], opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Channel", "OK", "Skipped", "Retry", "Reason"},
					[][]string{
						channelRow("email", result.Email),
						channelRow("whatsapp", result.WhatsApp),
					},
					nil,
				))
				fmt.Fprintf(cmd.OutOrStdout(), "delivered=%t reason=%s\n", result.Delivered, result.Reason)
				return nil
			}, &sched)
		},
	}

	cmd.Flags().BoolVar(&email, "email", false, "Resend the email channel")
	cmd.Flags().BoolVar(&whatsapp, "whatsapp", false, "Resend the WhatsApp channel")
	return cmd
}

func channelRow(name string, r delivery.ChannelResult) []string {
	retry := "-"
	if r.ScheduledRetry {
		retry = r.RetryIn.String()
	}
	return []string{name, strconv.FormatBool(r.OK), strconv.FormatBool(r.Skipped), retry, r.Reason}
}

func newOrdersEventsCommand() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "events <order-id>",
		Short: "Show the event timeline of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orderID, err := snowflake.ParseString(args[0])
			if err != nil || orderID == 0 {
				return orderdomain.ErrInvalidID
			}

			var events eventdomain.Service
			return withComponents(cmd, func(ctx context.Context) error {
				list, err := events.List(ctx, orderID)
				if err != nil {
					return err
				}
				if raw {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(list)
				}
				rows := make([][]string, 0, len(list))
				for _, e := range list {
					message := ""
					if e.Message != nil {
						message = truncate(*e.Message, 80)
					}
					createdAt := e.CreatedAt
					rows = append(rows, []string{formatTime(&createdAt), string(e.Type), message})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Time", "Type", "Message"}, rows, nil))
				return nil
			}, &events)
		},
	}

	cmd.Flags().BoolVar(&raw, "json", false, "Print events as JSON, including data")
	return cmd
}
