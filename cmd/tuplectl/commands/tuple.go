package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/tuplespaced/internal/tuplespace"
)

func outCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "out <field>...",
		Short: "Insert a tuple into the space",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Out(parseDataFields(args)); err != nil {
				return fmt.Errorf("out: %w", err)
			}
			return nil
		},
	}
}

func inCmd() *cobra.Command {
	var blocking bool

	cmd := &cobra.Command{
		Use:   "in <field>...",
		Short: "Remove and print tuples matching a template (use ?int/?str for wildcards)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runRead(args, blocking, readIn)
		},
	}

	cmd.Flags().BoolVar(&blocking, "blocking", false, "wait until a matching tuple appears")
	return cmd
}

func rdCmd() *cobra.Command {
	var blocking bool

	cmd := &cobra.Command{
		Use:   "rd <field>...",
		Short: "Print tuples matching a template without removing them (use ?int/?str for wildcards)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runRead(args, blocking, readRd)
		},
	}

	cmd.Flags().BoolVar(&blocking, "blocking", false, "wait until a matching tuple appears")
	return cmd
}

type readFunc func(c readClient, template tuplespace.Tuple, blocking bool) ([]tuplespace.Tuple, error)

// readClient is the subset of tsclient.Client the read commands need,
// narrowed so readIn/readRd can be shared between the blocking and
// non-blocking cobra flag variants.
type readClient interface {
	In(tuplespace.Tuple) ([]tuplespace.Tuple, error)
	Rd(tuplespace.Tuple) ([]tuplespace.Tuple, error)
	InBlocking(tuplespace.Tuple) ([]tuplespace.Tuple, error)
	RdBlocking(tuplespace.Tuple) ([]tuplespace.Tuple, error)
}

func readIn(c readClient, template tuplespace.Tuple, blocking bool) ([]tuplespace.Tuple, error) {
	if blocking {
		return c.InBlocking(template)
	}
	return c.In(template)
}

func readRd(c readClient, template tuplespace.Tuple, blocking bool) ([]tuplespace.Tuple, error) {
	if blocking {
		return c.RdBlocking(template)
	}
	return c.Rd(template)
}

func runRead(args []string, blocking bool, read readFunc) error {
	c, err := dial()
	if err != nil {
		return err
	}
	defer c.Close()

	template := parseTemplateFields(args)

	tuples, err := read(c, template, blocking)
	if err != nil {
		if errors.Is(err, tuplespace.ErrNoMatchingTuple) {
			return nil
		}
		return fmt.Errorf("read: %w", err)
	}

	out, err := formatTuples(tuples, outputFormat)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}
