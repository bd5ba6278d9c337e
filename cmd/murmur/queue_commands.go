package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"murmur/internal/ipc"
	"murmur/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the clip queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued clips",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseStatusFilters(listStatuses)
			if err != nil {
				return err
			}

			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				var items []ipc.QueueItem
				if client != nil {
					resp, err := client.QueueList(listStatuses)
					if err != nil {
						return err
					}
					items = resp.Items
				} else {
					stored, err := store.List(cmd.Context(), filters...)
					if err != nil {
						return err
					}
					items = ipc.FromQueueItems(stored)
				}

				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Clip", "Status", "Captured", "Detail"},
					buildQueueListRows(items),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [itemID...]",
		Short: "Retry failed clips",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid item id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					var updated int64
					var err error
					if client != nil {
						resp, retryErr := client.QueueRetry(nil)
						if retryErr != nil {
							return retryErr
						}
						updated = resp.Updated
					} else {
						updated, err = store.RetryFailed(cmd.Context())
						if err != nil {
							return err
						}
					}
					fmt.Fprintf(out, "Retried %d failed clips\n", updated)
					return nil
				}

				for _, id := range ids {
					item, err := describeItem(cmd, client, store, id)
					if err != nil {
						return err
					}
					if item == nil {
						fmt.Fprintf(out, "Item %d not found\n", id)
						continue
					}
					if !statusIsRetryable(item.Status) {
						fmt.Fprintf(out, "Item %d is not in failed state\n", id)
						continue
					}

					var updated int64
					if client != nil {
						resp, retryErr := client.QueueRetry([]int64{id})
						if retryErr != nil {
							return retryErr
						}
						updated = resp.Updated
					} else {
						updated, err = store.RetryFailed(cmd.Context(), id)
						if err != nil {
							return err
						}
					}
					if updated > 0 {
						fmt.Fprintf(out, "Item %d reset for retry\n", id)
					} else {
						fmt.Fprintf(out, "Item %d is not in failed state\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withQueue(func(client *ipc.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				var removed int64
				var noun string
				var err error

				switch {
				case clearCompleted:
					noun = "completed clips"
					if client != nil {
						resp, clearErr := client.QueueClear(ipc.ClearScopeCompleted)
						if clearErr != nil {
							return clearErr
						}
						removed = resp.Removed
					} else {
						removed, err = store.ClearCompleted(cmd.Context())
					}
				case clearFailed:
					noun = "failed clips"
					if client != nil {
						resp, clearErr := client.QueueClear(ipc.ClearScopeFailed)
						if clearErr != nil {
							return clearErr
						}
						removed = resp.Removed
					} else {
						removed, err = store.ClearFailed(cmd.Context())
					}
				default:
					noun = "queue items"
					if client != nil {
						resp, clearErr := client.QueueClear(ipc.ClearScopeAll)
						if clearErr != nil {
							return clearErr
						}
						removed = resp.Removed
					} else {
						removed, err = store.Clear(cmd.Context())
					}
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Cleared %d %s\n", removed, noun)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed clips")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed clips")
	return cmd
}

// describeItem fetches one item over whichever queue access path is live.
func describeItem(cmd *cobra.Command, client *ipc.Client, store *queue.Store, id int64) (*ipc.QueueItem, error) {
	if client != nil {
		resp, err := client.QueueList(nil)
		if err != nil {
			return nil, err
		}
		for i := range resp.Items {
			if resp.Items[i].ID == id {
				return &resp.Items[i], nil
			}
		}
		return nil, nil
	}

	item, err := store.GetByID(cmd.Context(), id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	converted := ipc.FromQueueItem(item)
	return &converted, nil
}

func parseStatusFilters(values []string) ([]queue.Status, error) {
	filters := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown queue status %q", value)
		}
		filters = append(filters, status)
	}
	return filters, nil
}

func statusIsRetryable(value string) bool {
	status, ok := queue.ParseStatus(value)
	return ok && status == queue.StatusFailed
}
