package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/rl1809/slabby/internal/adapter/handler"
	"github.com/rl1809/slabby/internal/core/domain"
)

var (
	listOwner    string
	listState    string
	listMaterial string
)

var shopCmd = &cobra.Command{
	Use:   "shop",
	Short: "Look up shops and their audit trail",
}

var shopGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one shop by id, in any state",
	Args:  cobra.ExactArgs(1),
	RunE:  runShopGet,
}

var shopAtCmd = &cobra.Command{
	Use:   "at <world> <x> <y> <z>",
	Short: "Show the shop at a location, or the shop whose inventory is there",
	Args:  cobra.ExactArgs(4),
	RunE:  runShopAt,
}

var shopListCmd = &cobra.Command{
	Use:   "list",
	Short: "List shops by owner or by traded material",
	RunE:  runShopList,
}

var shopLogsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Print the audit trail of a shop, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runShopLogs,
}

func init() {
	shopListCmd.Flags().StringVar(&listOwner, "owner", "", "owner unique id")
	shopListCmd.Flags().StringVar(&listState, "state", string(domain.ShopStateActive), "ACTIVE or DELETED, with --owner")
	shopListCmd.Flags().StringVar(&listMaterial, "material", "", "traded item material")
	shopListCmd.MarkFlagsMutuallyExclusive("owner", "material")
	shopListCmd.MarkFlagsOneRequired("owner", "material")

	shopCmd.AddCommand(shopGetCmd, shopAtCmd, shopListCmd, shopLogsCmd)
}

func runShopGet(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid shop id %q", args[0])
	}
	e, closeFn, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	shop, err := e.repo.ShopByID(cmd.Context(), id)
	if err != nil {
		return err
	}
	if shop == nil {
		return fmt.Errorf("shop %d not found", id)
	}
	return printShops(cmd.OutOrStdout(), handler.NewShopViews(e.codec, []*domain.Shop{shop}))
}

func runShopAt(cmd *cobra.Command, args []string) error {
	loc, err := parseLocation(args)
	if err != nil {
		return err
	}
	e, closeFn, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	shop, err := e.repo.ShopAt(ctx, loc)
	if err != nil {
		return err
	}
	if shop == nil {
		if shop, err = e.repo.ShopWithInventoryAt(ctx, loc); err != nil {
			return err
		}
	}
	if shop == nil {
		return fmt.Errorf("no shop at %s", loc)
	}
	return printShops(cmd.OutOrStdout(), handler.NewShopViews(e.codec, []*domain.Shop{shop}))
}

func runShopList(cmd *cobra.Command, _ []string) error {
	e, closeFn, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	ctx := cmd.Context()
	var shops []*domain.Shop
	if listOwner != "" {
		owner, err := uuid.Parse(listOwner)
		if err != nil {
			return fmt.Errorf("invalid owner: %w", err)
		}
		state := domain.ShopState(listState)
		if !state.Valid() {
			return fmt.Errorf("invalid state %q", listState)
		}
		shops, err = e.repo.ShopsOf(ctx, owner, state)
		if err != nil {
			return err
		}
	} else {
		item, err := e.codec.Encode(domain.ItemDescriptor{Material: listMaterial})
		if err != nil {
			return err
		}
		shops, err = e.repo.ShopsByItem(ctx, item)
		if err != nil {
			return err
		}
	}
	return printShops(cmd.OutOrStdout(), handler.NewShopViews(e.codec, shops))
}

func runShopLogs(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid shop id %q", args[0])
	}
	e, closeFn, err := openEnv(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	shop, err := e.repo.ShopByID(cmd.Context(), id)
	if err != nil {
		return err
	}
	if shop == nil {
		return fmt.Errorf("shop %d not found", id)
	}

	logs := handler.NewLogViews(shop.Logs)
	out := cmd.OutOrStdout()
	if jsonOutput {
		return writeJSON(out, logs)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tACTION\tACTOR\tCREATED\tPAYLOAD")
	for _, l := range logs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", l.ID, l.Action, l.Actor, l.CreatedOn.Format("2006-01-02 15:04:05"), string(l.Payload))
	}
	return w.Flush()
}

func printShops(out io.Writer, shops []handler.ShopView) error {
	if jsonOutput {
		return writeJSON(out, shops)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tLOCATION\tITEM\tBUY\tSELL\tQTY\tSTOCK\tOWNERS")
	for _, s := range shops {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%d\n",
			s.ID, s.State, locationString(s.Location), material(s.Item),
			priceString(s.BuyPrice), priceString(s.SellPrice), s.Quantity, stockString(s), len(s.Owners))
	}
	return w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseLocation(args []string) (domain.Location, error) {
	var coords [3]int
	for i, a := range args[1:] {
		n, err := strconv.Atoi(a)
		if err != nil {
			return domain.Location{}, fmt.Errorf("invalid coordinate %q", a)
		}
		coords[i] = n
	}
	return domain.NewLocation(coords[0], coords[1], coords[2], args[0]), nil
}

func locationString(l *domain.Location) string {
	if l == nil {
		return "-"
	}
	return l.String()
}

func material(item *domain.ItemDescriptor) string {
	if item == nil {
		return "?"
	}
	return item.Material
}

func priceString(p *decimal.Decimal) string {
	if p == nil {
		return "-"
	}
	return p.String()
}

func stockString(s handler.ShopView) string {
	if s.Admin {
		return "admin"
	}
	return strconv.Itoa(*s.Stock)
}
