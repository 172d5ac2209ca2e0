package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orderline/internal/app"
	"orderline/internal/domain"
	"orderline/internal/engine"
	"orderline/internal/engine/auth"
)

type kindCommands struct {
	kind  domain.Kind
	short string
	extra func() []*cobra.Command
}

var orderCommands = kindCommands{
	kind:  domain.KindOrder,
	short: "Manage storefront orders",
	extra: func() []*cobra.Command { return []*cobra.Command{orderCreateCmd(), shipProofCmd()} },
}

var quoteCommands = kindCommands{
	kind:  domain.KindQuote,
	short: "Manage design quotes",
	extra: func() []*cobra.Command { return []*cobra.Command{quoteCreateCmd(), reassignCmd(), designCmd()} },
}

func itemCmd(k kindCommands) *cobra.Command {
	cmd := &cobra.Command{Use: string(k.kind), Short: k.short}
	cmd.AddCommand(itemListCmd(k.kind))
	cmd.AddCommand(itemGetCmd(k.kind))
	cmd.AddCommand(itemCountsCmd(k.kind))
	cmd.AddCommand(itemEventsCmd(k.kind))
	cmd.AddCommand(transitionCmd(k.kind))
	cmd.AddCommand(itemActionCmd(k.kind, "claim", "Claim an unassigned "+string(k.kind), func(e engine.Engine) itemAction { return e.Claim }))
	cmd.AddCommand(itemActionCmd(k.kind, "release", "Give up your claim", func(e engine.Engine) itemAction { return e.Release }))
	cmd.AddCommand(itemActionCmd(k.kind, "unassign", "Remove the assignee (admin)", func(e engine.Engine) itemAction { return e.Unassign }))
	cmd.AddCommand(assignCmd(k.kind))
	for _, c := range k.extra() {
		cmd.AddCommand(c)
	}
	return cmd
}

type itemAction func(ctx context.Context, s auth.Subject, id string) (domain.WorkItem, error)

func itemActionCmd(kind domain.Kind, use, short string, pick func(engine.Engine) itemAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				if err := a.Engine.ExpectKind(ctx, args[0], kind); err != nil {
					return err
				}
				it, err := pick(a.Engine)(ctx, s, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
}

func itemListCmd(kind domain.Kind) *cobra.Command {
	var f engine.ListFilter
	var status string
	var asc bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %ss visible to the actor", kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Kind = kind
			f.Status = domain.Status(status)
			f.SortDesc = !asc
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				page, err := a.Engine.List(ctx, s, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				if err := printItems(page.Items); err != nil {
					return err
				}
				fmt.Printf("page %d of %d (%d total)\n", page.Page, page.TotalPages, page.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Search, "search", "", "free-text search")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee-id", "", "assignee filter")
	cmd.Flags().BoolVar(&f.Pool, "pool", false, "list unassigned items you could claim")
	cmd.Flags().IntVar(&f.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.PageSize, "page-size", engine.DefaultPageSize, "page size")
	cmd.Flags().StringVar(&f.SortBy, "sort", "created_at", "created_at or updated_at")
	cmd.Flags().BoolVar(&asc, "asc", false, "oldest first")
	return cmd
}

func itemGetCmd(kind domain.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: fmt.Sprintf("Show one %s", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				view, err := a.Engine.Get(ctx, s, args[0], kind)
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
}

func itemCountsCmd(kind domain.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "counts",
		Short: fmt.Sprintf("Count %ss by status", kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				counts, err := a.Engine.CountByStatus(ctx, s, engine.ListFilter{Kind: kind})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				statuses := make([]string, 0, len(counts))
				for st := range counts {
					statuses = append(statuses, string(st))
				}
				sort.Strings(statuses)
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Count"})
				for _, st := range statuses {
					tw.AppendRow(table.Row{st, counts[domain.Status(st)]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func itemEventsCmd(kind domain.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "events <id>",
		Short: fmt.Sprintf("Show the audit trail of a %s", kind),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				evts, err := a.Engine.ItemEvents(ctx, s, args[0], kind)
				if err != nil {
					return err
				}
				return printEvents(evts)
			})
		},
	}
}

func transitionCmd(kind domain.Kind) *cobra.Command {
	var quotedPrice, reason, imageURL, adminNotes, notes string
	breakdown := map[string]*string{}
	cmd := &cobra.Command{
		Use:   "transition <id> <status>",
		Short: fmt.Sprintf("Move a %s to another status", kind),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := domain.Status(args[1])
			fields := engine.TransitionFields{
				ShippingImageURL: optionalString(cmd, "shipping-image-url", imageURL),
				AdminNotes:       optionalString(cmd, "admin-notes", adminNotes),
				Notes:            optionalString(cmd, "notes", notes),
			}
			if cmd.Flags().Changed("reason") {
				if target == domain.StatusRejected {
					fields.RejectionReason = &reason
				} else {
					fields.CancelReason = &reason
				}
			}
			if cmd.Flags().Changed("quoted-price") {
				p, err := parseMoney("quoted-price", quotedPrice)
				if err != nil {
					return err
				}
				fields.QuotedPrice = &p
			}
			b, err := breakdownFromFlags(cmd, breakdown)
			if err != nil {
				return err
			}
			fields.PriceBreakdown = b
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				it, err := a.Engine.Transition(ctx, engine.TransitionRequest{
					ItemID: args[0],
					Kind:   kind,
					Actor:  s,
					Target: target,
					Fields: fields,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection or cancel reason")
	cmd.Flags().StringVar(&imageURL, "shipping-image-url", "", "shipping proof image url")
	cmd.Flags().StringVar(&adminNotes, "admin-notes", "", "admin-only notes")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	if kind == domain.KindQuote {
		cmd.Flags().StringVar(&quotedPrice, "quoted-price", "", "quoted price")
		for _, name := range breakdownFlags {
			breakdown[name] = cmd.Flags().String(name, "0", "price breakdown: "+strings.ReplaceAll(name, "-", " "))
		}
	}
	return cmd
}

var breakdownFlags = []string{"base-price", "setup-fee", "design-fee", "rush-fee", "shipping-fee", "tax"}

// breakdownFromFlags returns nil unless at least one component was given.
func breakdownFromFlags(cmd *cobra.Command, values map[string]*string) (*domain.PriceBreakdown, error) {
	changed := false
	amounts := map[string]decimal.Decimal{}
	for _, name := range breakdownFlags {
		v, ok := values[name]
		if !ok {
			continue
		}
		changed = changed || cmd.Flags().Changed(name)
		d, err := parseMoney(name, *v)
		if err != nil {
			return nil, err
		}
		amounts[name] = d
	}
	if !changed {
		return nil, nil
	}
	return &domain.PriceBreakdown{
		BasePrice:   amounts["base-price"],
		SetupFee:    amounts["setup-fee"],
		DesignFee:   amounts["design-fee"],
		RushFee:     amounts["rush-fee"],
		ShippingFee: amounts["shipping-fee"],
		Tax:         amounts["tax"],
	}, nil
}

func parseMoney(flag, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("--%s: %q is not a decimal amount", flag, s)
	}
	return d, nil
}

func assignCmd(kind domain.Kind) *cobra.Command {
	return &cobra.Command{
		Use:   "assign <id> <assignee-id>",
		Short: fmt.Sprintf("Assign a %s (admin)", kind),
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				if err := a.Engine.ExpectKind(ctx, args[0], kind); err != nil {
					return err
				}
				it, err := a.Engine.Assign(ctx, s, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
}

func orderCreateCmd() *cobra.Command {
	var (
		owner, number, notes, file, shippingFee string
		lines                                   []string
		addr                                    domain.Address
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an order",
		Example: `  ol order create --item tee-1:"Classic Tee":2:150000:M \
    --ship-name "Ana Silva" --street "1 Main St" --city Hanoi --country VN --shipping-fee 30000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var p domain.OrderPayload
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return err
				}
				if err := json.Unmarshal(data, &p); err != nil {
					return fmt.Errorf("decode %s: %w", file, err)
				}
			} else {
				for _, l := range lines {
					item, err := parseLineItem(l)
					if err != nil {
						return err
					}
					p.Items = append(p.Items, item)
				}
				p.ShippingAddress = addr
				if shippingFee != "" {
					fee, err := parseMoney("shipping-fee", shippingFee)
					if err != nil {
						return err
					}
					p.ShippingFee = fee
				}
			}
			if number != "" {
				p.OrderNumber = number
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				it, err := a.Engine.CreateOrder(ctx, s, engine.CreateOrderOptions{OwnerUserID: owner, Payload: p, Notes: notes})
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "customer who owns the order (admin only; default is you)")
	cmd.Flags().StringVar(&number, "number", "", "order number (generated when empty)")
	cmd.Flags().StringArrayVar(&lines, "item", nil, "line item product_id:name:quantity:unit_price[:size[:color]]")
	cmd.Flags().StringVar(&addr.Name, "ship-name", "", "recipient name")
	cmd.Flags().StringVar(&addr.Phone, "phone", "", "recipient phone")
	cmd.Flags().StringVar(&addr.Street, "street", "", "street")
	cmd.Flags().StringVar(&addr.City, "city", "", "city")
	cmd.Flags().StringVar(&addr.State, "state", "", "state")
	cmd.Flags().StringVar(&addr.PostalCode, "postal-code", "", "postal code")
	cmd.Flags().StringVar(&addr.Country, "country", "", "country")
	cmd.Flags().StringVar(&shippingFee, "shipping-fee", "", "shipping fee")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	cmd.Flags().StringVar(&file, "file", "", "read the order payload from a JSON file")
	return cmd
}

func parseLineItem(s string) (domain.LineItem, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 4 {
		return domain.LineItem{}, fmt.Errorf("--item %q: want product_id:name:quantity:unit_price", s)
	}
	qty, err := strconv.Atoi(parts[2])
	if err != nil {
		return domain.LineItem{}, fmt.Errorf("--item %q: quantity must be a number", s)
	}
	price, err := parseMoney("item", parts[3])
	if err != nil {
		return domain.LineItem{}, err
	}
	it := domain.LineItem{ProductID: parts[0], Name: parts[1], Quantity: qty, UnitPrice: price}
	if len(parts) > 4 {
		it.Size = parts[4]
	}
	if len(parts) > 5 {
		it.Color = parts[5]
	}
	return it, nil
}

func shipProofCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ship-proof <id> <image-url>",
		Short: "Attach the shipping proof and mark the order shipped",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				it, err := a.Engine.UploadShippingProof(ctx, s, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
}

func quoteCreateCmd() *cobra.Command {
	var (
		owner, notes, delivery string
		p                      domain.QuotePayload
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Request a design quote",
		RunE: func(cmd *cobra.Command, args []string) error {
			if delivery != "" {
				d, err := time.Parse(time.DateOnly, delivery)
				if err != nil {
					return fmt.Errorf("--delivery-date: want YYYY-MM-DD")
				}
				p.DesiredDeliveryDate = &d
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				it, err := a.Engine.CreateQuote(ctx, s, engine.CreateQuoteOptions{OwnerUserID: owner, Payload: p, Notes: notes})
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "customer who owns the quote (admin only; default is you)")
	cmd.Flags().StringVar(&p.CustomerName, "customer-name", "", "customer name")
	cmd.Flags().StringVar(&p.CustomerEmail, "customer-email", "", "customer email")
	cmd.Flags().StringVar(&p.CustomerPhone, "customer-phone", "", "customer phone")
	cmd.Flags().StringVar(&p.ProductType, "product-type", "", "product type, e.g. hoodie")
	cmd.Flags().IntVar(&p.Quantity, "quantity", 0, "quantity")
	cmd.Flags().StringSliceVar(&p.Sizes, "size", nil, "sizes")
	cmd.Flags().StringSliceVar(&p.Colors, "color", nil, "colors")
	cmd.Flags().StringSliceVar(&p.PrintAreas, "print-area", nil, "print areas")
	cmd.Flags().StringVar(&p.DesignDescription, "description", "", "design description")
	cmd.Flags().StringSliceVar(&p.ReferenceImageURLs, "reference-url", nil, "reference image urls")
	cmd.Flags().StringVar(&delivery, "delivery-date", "", "desired delivery date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&notes, "notes", "", "notes")
	return cmd
}

func reassignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reassign <id> <designer-id>",
		Short: "Hand a quote to another designer (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				if err := a.Engine.ExpectKind(ctx, args[0], domain.KindQuote); err != nil {
					return err
				}
				it, err := a.Engine.Reassign(ctx, s, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
}

func designCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "design <id> <url>",
		Short: "Record the primary design of a quote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				it, err := a.Engine.SetPrimaryDesign(ctx, s, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
}

func notesCmd() *cobra.Command {
	var notes, adminNotes string
	cmd := &cobra.Command{
		Use:   "notes <id>",
		Short: "Update the notes of an order or quote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upd := engine.NotesUpdate{
				Notes:      optionalString(cmd, "notes", notes),
				AdminNotes: optionalString(cmd, "admin-notes", adminNotes),
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App, s auth.Subject) error {
				it, err := a.Engine.UpdateNotes(ctx, s, args[0], upd)
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "notes (empty clears)")
	cmd.Flags().StringVar(&adminNotes, "admin-notes", "", "admin-only notes (empty clears)")
	return cmd
}
