package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"deltaServer/backend/internal/editor"
	"deltaServer/backend/internal/ot/delta"
)

type printer func(cmd *cobra.Command, v any) error

func newPairCmd(use, short string, out printer, op func(a, b delta.Delta, priority bool) (delta.Delta, error)) *cobra.Command {
	var priority bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := readDelta(cmd, args[0])
			if err != nil {
				return err
			}
			b, err := readDelta(cmd, args[1])
			if err != nil {
				return err
			}
			result, err := op(a, b, priority)
			if err != nil {
				return err
			}
			return out(cmd, result)
		},
	}
	if cmd.Name() == "transform" {
		cmd.Flags().BoolVar(&priority, "priority", false, "Treat <a> as the earlier change on ties")
	}
	return cmd
}

func newPositionCmd(out printer) *cobra.Command {
	var priority bool
	cmd := &cobra.Command{
		Use:   "position <change> <index>",
		Short: "Map a document offset through a change",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			change, err := readDelta(cmd, args[0])
			if err != nil {
				return err
			}
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("index %q: %w", args[1], err)
			}
			moved, err := change.TransformPosition(index, priority)
			if err != nil {
				return err
			}
			return out(cmd, map[string]int{"index": moved})
		},
	}
	cmd.Flags().BoolVar(&priority, "priority", false, "Keep the offset before an insert at the same place")
	return cmd
}

type deltaStat struct {
	Ops          int    `json:"ops"`
	Length       int    `json:"length"`
	ChangeLength int    `json:"changeLength"`
	BaseLength   int    `json:"baseLength"`
	Document     bool   `json:"document"`
	Text         string `json:"text,omitempty"`
}

func newStatCmd(out printer) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <delta>",
		Short: "Print lengths of a delta, and its text when it is a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readDelta(cmd, args[0])
			if err != nil {
				return err
			}
			s := deltaStat{
				Ops:          len(d),
				Length:       d.Length(),
				ChangeLength: d.ChangeLength(),
				BaseLength:   d.BaseLength(),
				Document:     d.IsDocument(),
			}
			if s.Document {
				s.Text = d.PlainText()
			}
			return out(cmd, s)
		},
	}
}

func newFmtCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fmt <delta>",
		Short: `Print a delta in canonical {"ops":[...]} form`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readDelta(cmd, args[0])
			if err != nil {
				return err
			}
			ed, err := editor.FromDelta(d.Canonical())
			if err != nil {
				return err
			}
			text, err := ed.ToText()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}
}

// append 在文档末尾追加文本，输出追加后的文档和对应的 change
func newAppendCmd(out printer) *cobra.Command {
	return &cobra.Command{
		Use:   "append <document> <text>",
		Short: "Append text to a document and print the result with the change",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDelta(cmd, args[0])
			if err != nil {
				return err
			}
			if !doc.IsDocument() {
				return fmt.Errorf("%s: not a document: %w", args[0], delta.ErrInvalidOperation)
			}
			ed, err := editor.FromDelta(doc)
			if err != nil {
				return err
			}
			change, err := ed.InsertText(args[1])
			if err != nil {
				return err
			}
			return out(cmd, map[string]delta.Delta{"document": ed.Delta(), "change": change})
		},
	}
}
