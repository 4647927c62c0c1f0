package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/datascanner/internal/core/domain"
	"github.com/custodia-labs/datascanner/internal/logger"
)

// aliasKeys maps alias types to the configuration keys listing the
// aliases registered at startup.
var aliasKeys = map[domain.AliasType]string{
	domain.AliasEmail:   "aliases.email",
	domain.AliasSID:     "aliases.sid",
	domain.AliasGeneric: "aliases.generic",
}

var collectFollow bool

var collectCmd = &cobra.Command{
	Use:   "collect [file]",
	Short: "Store scanner results as document reports",
	Long: `Reads scanner result messages, one JSON object per line, from a file or
from standard input, and applies them to the report database. Matches,
problems and metadata update the report of the object they concern, and
reports are linked to the aliases their owner metadata names.

Aliases listed in the configuration under [aliases] (email, sid, generic) are
registered before reading. With --follow the file is read as it grows and the
configured aliases are registered again whenever the configuration changes.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCollect,
}

var collectAliasCmd = &cobra.Command{
	Use:   "alias <email|SID|generic> <value>",
	Short: "Register an owner alias",
	Args:  cobra.ExactArgs(2),
	RunE:  runCollectAlias,
}

func init() {
	collectCmd.Flags().BoolVarP(&collectFollow, "follow", "f", false, "keep reading the file as it grows")
	collectCmd.AddCommand(collectAliasCmd)
	rootCmd.AddCommand(collectCmd)
}

func runCollectAlias(cmd *cobra.Command, args []string) error {
	if resultCollector == nil {
		return errors.New("result collector not configured")
	}
	alias, err := resultCollector.AddAlias(cmd.Context(), domain.AliasType(args[0]), args[1])
	if err != nil {
		return err
	}
	cmd.Printf("Alias %s registered: %s %s\n", alias.ID, alias.Type, alias.Value)
	return nil
}

func runCollect(cmd *cobra.Command, args []string) error {
	if resultCollector == nil {
		return errors.New("result collector not configured")
	}
	ctx := cmd.Context()
	registerConfiguredAliases(ctx)

	c := &collection{ctx: ctx}
	if len(args) == 0 {
		if collectFollow {
			return errors.New("--follow needs a file")
		}
		if err := c.read(cmd.InOrStdin()); err != nil {
			return err
		}
	} else if collectFollow {
		if configStore != nil {
			go func() {
				if err := configStore.Watch(ctx, func() { registerConfiguredAliases(ctx) }); err != nil {
					logger.Warn("watching configuration: %v", err)
				}
			}()
		}
		if err := c.follow(args[0]); err != nil {
			return err
		}
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		if err := c.read(f); err != nil {
			return err
		}
	}

	cmd.Printf("Collected %d messages (%d failed).\n", c.collected, c.failed)
	return nil
}

// registerConfiguredAliases adds the aliases listed in the configuration.
func registerConfiguredAliases(ctx context.Context) {
	if configStore == nil {
		return
	}
	for aliasType, key := range aliasKeys {
		for _, value := range configStore.GetStringSlice(key) {
			if _, err := resultCollector.AddAlias(ctx, aliasType, value); err != nil {
				logger.Warn("registering %s alias %q: %v", aliasType, value, err)
			}
		}
	}
}

// collection counts the messages applied by one collect run.
type collection struct {
	ctx       context.Context
	line      int
	collected int
	failed    int
}

func (c *collection) apply(line []byte) {
	c.line++
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	if err := resultCollector.Collect(c.ctx, line); err != nil {
		c.failed++
		logger.Error("line %d: %v", c.line, err)
		return
	}
	c.collected++
}

func (c *collection) read(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if err := c.ctx.Err(); err != nil {
			return err
		}
		c.apply(sc.Bytes())
	}
	return sc.Err()
}

// follow reads path line by line and, at its end, waits for it to be
// written to again. It returns when the context is cancelled.
func (c *collection) follow(path string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(path); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var pending []byte
	for {
		chunk, err := r.ReadBytes('\n')
		pending = append(pending, chunk...)
		switch {
		case err == nil:
			c.apply(pending)
			pending = pending[:0]
			continue
		case !errors.Is(err, io.EOF):
			return err
		}

		select {
		case <-c.ctx.Done():
			if len(pending) > 0 {
				c.apply(pending)
			}
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				return fmt.Errorf("%s was moved away", path)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watching %s: %v", path, err)
		}
	}
}
