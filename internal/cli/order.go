package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// OrderQueue ставит заказ в очередь orders.submitted.
// Реализация: mq.Publisher.
type OrderQueue interface {
	PublishOrderSubmitted(ctx context.Context, item string) error
}

// NewOrderCmd создаёт группу команд для заказов.
//
// queueFn может быть nil: тогда --via-mq недоступен.
func NewOrderCmd(clientFn func() *Client, outputFn func() *Output, queueFn func() (OrderQueue, func(), error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Submit and inspect orders",
	}

	cmd.AddCommand(
		newOrderSubmitCmd(clientFn, outputFn, queueFn),
		newOrderShowCmd(clientFn, outputFn),
		newOrderListCmd(clientFn, outputFn),
	)

	return cmd
}

var orderHeaders = []string{"ID", "ITEM", "ROBOT", "OUTCOME", "REASON", "DURATION", "CREATED"}

func orderRow(o OrderResponse) []string {
	duration := "-"
	if o.DurationMs != nil {
		duration = (time.Duration(*o.DurationMs) * time.Millisecond).String()
	}
	robot := o.Robot
	if robot == "" {
		robot = "-"
	}
	return []string{o.ID, o.Item, robot, o.Outcome, o.Reason, duration, o.CreatedAt}
}

func newOrderSubmitCmd(clientFn func() *Client, outputFn func() *Output, queueFn func() (OrderQueue, func(), error)) *cobra.Command {
	var wait bool
	var waitTimeout time.Duration
	var viaMQ bool

	cmd := &cobra.Command{
		Use:   "submit ITEM",
		Short: "Order a smoothie",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			if viaMQ {
				if wait {
					return errors.New("--wait is not supported with --via-mq")
				}
				if queueFn == nil {
					return errors.New("message queue submission is not configured")
				}
				queue, closeFn, err := queueFn()
				if err != nil {
					return err
				}
				defer closeFn()

				if err := queue.PublishOrderSubmitted(cmd.Context(), args[0]); err != nil {
					return err
				}
				out.Success("Order queued")
				return nil
			}

			client := clientFn()
			accepted, err := client.SubmitOrder(args[0])
			if err != nil {
				return err
			}
			out.Success(fmt.Sprintf("Order accepted: %s", accepted.ID))

			if !wait {
				out.Print([]string{"ID", "OUTCOME"}, [][]string{{accepted.ID, accepted.Outcome}}, accepted)
				return nil
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), waitTimeout)
			defer cancel()

			order, err := client.WaitOrder(ctx, accepted.ID, 500*time.Millisecond)
			if err != nil {
				return fmt.Errorf("wait for order %s: %w", accepted.ID, err)
			}

			out.Print(orderHeaders, [][]string{orderRow(*order)}, order)
			if order.Outcome != "SUCCEEDED" {
				return fmt.Errorf("order %s: %s", order.Reason, order.Detail)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the final outcome")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 2*time.Minute, "Maximum time to wait with --wait")
	cmd.Flags().BoolVar(&viaMQ, "via-mq", false, "Publish to the orders.submitted queue instead of calling the API")

	return cmd
}

func newOrderShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show order details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			order, err := client.GetOrder(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"ID", "ITEM", "ROBOT", "STAGE", "OUTCOME", "REASON", "DETAIL"},
				[][]string{{order.ID, order.Item, order.Robot, order.Stage, order.Outcome, order.Reason, order.Detail}},
				order,
			)
			return nil
		},
	}
}

func newOrderListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var outcome string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			orders, err := client.ListOrders(ListOrdersOpts{Outcome: outcome, Limit: limit})
			if err != nil {
				return err
			}

			rows := make([][]string, len(orders))
			for i, o := range orders {
				rows[i] = orderRow(o)
			}

			out.Print(orderHeaders, rows, orders)
			if !out.jsonMode {
				out.Success(strconv.Itoa(len(orders)) + " order(s)")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outcome, "outcome", "", "Filter by outcome (PENDING, SUCCEEDED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of results")

	return cmd
}
