package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Devmainman/kurosadmin/internal/mutation"
	"github.com/Devmainman/kurosadmin/internal/resource"
	"github.com/Devmainman/kurosadmin/pkg/pagination"
)

func validTypes() string {
	names := make([]string, len(resource.Entities))
	for i, t := range resource.Entities {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

func parseEntity(name string) (resource.Type, error) {
	t, err := resource.ParseType(name)
	if err != nil || !t.IsEntity() {
		return "", fmt.Errorf("unknown resource type %q (valid: %s)", name, validTypes())
	}
	return t, nil
}

func (c *console) load(cmd *cobra.Command, key resource.Key) error {
	if err := c.requireSession(); err != nil {
		return err
	}

	e, err := c.cache.Load(cmd.Context(), key)
	if err != nil {
		if rerr := c.requireSession(); rerr != nil {
			return rerr
		}
		return fmt.Errorf("load %s: %w", key, err)
	}

	output, err := json.MarshalIndent(e.Data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return nil
}

func newListCmd(c *console) *cobra.Command {
	var (
		search      string
		page, limit int
		filters     []string
	)

	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List the entities of a type",
		Long: `List prints the entities of a type as JSON.

Example:
  consolectl list blog
  consolectl list contacts --search acme --limit 20
  consolectl list quotes --filter status=pending`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseEntity(args[0])
			if err != nil {
				return err
			}

			q := url.Values{}
			if search != "" {
				q.Set("search", search)
			}
			if page > 0 {
				q.Set("page", fmt.Sprint(page))
			}
			if limit > 0 {
				q.Set("limit", fmt.Sprint(limit))
			}
			params := pagination.FromQuery(q).Values()
			for _, f := range filters {
				name, value, ok := strings.Cut(f, "=")
				if !ok || name == "" {
					return fmt.Errorf("filter %q must be name=value", f)
				}
				params.Add(name, value)
			}

			return c.load(cmd, resource.CollectionKey(t, params))
		},
	}

	cmd.Flags().StringVar(&search, "search", "", "search term")
	cmd.Flags().IntVar(&page, "page", 0, "page number")
	cmd.Flags().IntVar(&limit, "limit", 0, "page size")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "extra filter as name=value (repeatable)")
	return cmd
}

func newGetCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "get <type> <id>",
		Short: "Get an entity by ID",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			return c.load(cmd, resource.DetailKey(t, args[1]))
		},
	}
}

func newDeleteCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <type> <id>",
		Short: "Delete an entity by ID",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			if err := c.requireSession(); err != nil {
				return err
			}

			_, err = c.mutator.Mutate(cmd.Context(), mutation.Request{Type: t, Op: mutation.OpDelete, ID: args[1]})
			if err != nil {
				if rerr := c.requireSession(); rerr != nil {
					return rerr
				}
				return fmt.Errorf("delete %s/%s: %w", t, args[1], err)
			}
			return nil
		},
	}
}
