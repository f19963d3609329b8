package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewRobotCmd создаёт группу команд для управления роботами.
func NewRobotCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "robot",
		Short: "Manage the robot fleet",
	}

	cmd.AddCommand(
		newRobotListCmd(clientFn, outputFn),
		newRobotRegisterCmd(clientFn, outputFn),
		newRobotSetStatusCmd(clientFn, outputFn),
	)

	return cmd
}

func newRobotListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List robots",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			robots, err := client.ListRobots()
			if err != nil {
				return err
			}

			rows := make([][]string, len(robots))
			for i, r := range robots {
				rows[i] = []string{r.Name, r.Status, r.UpdatedAt}
			}

			out.Print([]string{"NAME", "STATUS", "UPDATED"}, rows, robots)
			return nil
		},
	}
}

func newRobotRegisterCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "register NAME",
		Short: "Register a robot as AVAILABLE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			robot, err := client.RegisterRobot(args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Robot registered: %s", robot.Name))
			return nil
		},
	}
}

func newRobotSetStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "set-status NAME STATUS",
		Short: "Set robot status (AVAILABLE, BUSY, FAULTED)",
		Long: "Set robot status. The usual case is returning a FAULTED robot\n" +
			"to the pool after it has been inspected:\n\n" +
			"  smoothie robot set-status robot-1 AVAILABLE",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			robot, err := client.SetRobotStatus(args[0], strings.ToUpper(args[1]))
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Robot %s is now %s", robot.Name, robot.Status))
			return nil
		},
	}
}
