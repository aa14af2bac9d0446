package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"medeasy/pos/domain"
	"medeasy/pos/internal/posclient"
	"medeasy/pos/internal/salecart"
)

const helpText = `commands:
  login <username> <password>   start a session
  logout                        end the session
  meds [search]                 reload stock and list medicines
  add <id> [qty]                add units of a medicine (default 1)
  set <id> <qty>                change a line quantity (0 removes it)
  rm <id>                       remove a line
  pay cash|mobile_money         choose the payment method
  cart                          show the cart
  submit                        complete the sale and print the receipt
  reset                         clear the cart
  close | open                  close the sale (clears after a short delay) or reopen it
  sales                         list recent sales
  receipt <sale id>             reprint a receipt
  help | quit`

// shell is the terminal front end of one till.
type shell struct {
	client  *posclient.Client
	cart    *salecart.Engine
	stock   salecart.Stock
	out     io.Writer
	timeout time.Duration
	logger  zerolog.Logger
}

func (s *shell) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(s.out, "MedEasy POS. Type help for commands.")
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "quit" || fields[0] == "exit" {
			return nil
		}
		if err := s.exec(ctx, fields[0], fields[1:]); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (s *shell) exec(parent context.Context, cmd string, args []string) error {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	switch cmd {
	case "help":
		fmt.Fprintln(s.out, helpText)
	case "login":
		if len(args) != 2 {
			return errors.New("usage: login <username> <password>")
		}
		tok, err := s.client.Login(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		name := args[0]
		if tok.User != nil && tok.User.FullName != "" {
			name = tok.User.FullName
		}
		fmt.Fprintf(s.out, "welcome, %s\n", name)
		return s.reloadStock(ctx, "")
	case "logout":
		if err := s.cart.Reset(); err != nil {
			return err
		}
		s.stock = salecart.Stock{}
		return s.client.Logout(ctx)
	case "meds":
		return s.reloadStock(ctx, strings.Join(args, " "))
	case "add":
		id, qty, err := parseLineArgs(args, 1)
		if err != nil {
			return err
		}
		med, ok := s.stock.Lookup(id)
		if !ok {
			return fmt.Errorf("medicine %d is not in the stock list, run meds", id)
		}
		if err := s.cart.AddOrIncrement(ctx, med, qty); err != nil {
			return err
		}
		s.printCart()
	case "set":
		if len(args) != 2 {
			return errors.New("usage: set <id> <qty>")
		}
		id, qty, err := parseLineArgs(args, 0)
		if err != nil {
			return err
		}
		if err := s.cart.SetQuantity(ctx, id, qty); err != nil {
			return err
		}
		s.printCart()
	case "rm":
		id, _, err := parseLineArgs(args, 0)
		if err != nil {
			return err
		}
		if err := s.cart.RemoveItem(id); err != nil {
			return err
		}
		s.printCart()
	case "pay":
		if len(args) != 1 {
			return errors.New("usage: pay cash|mobile_money")
		}
		method, err := domain.ParsePaymentMethod(args[0])
		if err != nil {
			return err
		}
		return s.cart.SetPaymentMethod(method)
	case "cart":
		s.printCart()
	case "submit":
		receipt, err := s.cart.Submit(ctx)
		if err != nil {
			return err
		}
		printReceipt(s.out, receipt)
		return s.reloadStock(ctx, "")
	case "reset":
		if err := s.cart.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(s.out, "cart cleared")
	case "close":
		s.cart.Close()
	case "open":
		s.cart.Open()
		s.printCart()
	case "sales":
		sales, err := s.client.Sales(ctx, 0, 20)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tINVOICE\tDATE\tCASHIER\tPAYMENT\tTOTAL")
		for _, sale := range sales {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", sale.ID, sale.InvoiceNumber, sale.SaleDate, sale.SoldBy, sale.PaymentMethod, money(sale.TotalAmount))
		}
		return tw.Flush()
	case "receipt":
		id, _, err := parseLineArgs(args, 0)
		if err != nil {
			return err
		}
		receipt, err := s.client.Receipt(ctx, id)
		if err != nil {
			return err
		}
		printReceipt(s.out, receipt)
	default:
		return fmt.Errorf("unknown command %q, type help", cmd)
	}
	return nil
}

func (s *shell) reloadStock(ctx context.Context, search string) error {
	stock, err := s.client.Stock(ctx)
	if errors.Is(err, posclient.ErrSessionExpired) || posclient.IsCode(err, "UNAUTHORIZED") {
		return errors.New("not logged in, use login <username> <password>")
	}
	if err != nil {
		return err
	}
	s.stock = stock
	s.logger.Debug().Int("medicines", stock.Len()).Msg("stock snapshot loaded")

	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tFORM\tIN STOCK\tPRICE\tEXPIRES")
	for _, m := range stock.Search(search) {
		expiry := "-"
		if m.EarliestExpiry != nil {
			expiry = *m.EarliestExpiry
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n", m.ID, m.Name, m.Form, m.TotalQuantity, money(m.SellingPrice), expiry)
	}
	return tw.Flush()
}

func (s *shell) printCart() {
	items := s.cart.Items()
	if len(items) == 0 {
		fmt.Fprintln(s.out, "cart is empty")
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMEDICINE\tQTY\tSUBTOTAL")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", it.Medicine.ID, it.Medicine.Name, it.Quantity, money(it.Subtotal))
	}
	fmt.Fprintf(tw, "\tTOTAL (%s)\t\t%s\n", s.cart.PaymentMethod(), money(s.cart.ComputeTotal()))
	_ = tw.Flush()
}

func printReceipt(out io.Writer, r domain.Receipt) {
	if r.Pharmacy != nil {
		fmt.Fprintln(out, r.Pharmacy.Name)
		if r.Pharmacy.Address != "" {
			fmt.Fprintln(out, r.Pharmacy.Address)
		}
		if r.Pharmacy.Phone != "" {
			fmt.Fprintln(out, "Tel: "+r.Pharmacy.Phone)
		}
	}
	fmt.Fprintf(out, "Invoice: %s\nDate:    %s\nCashier: %s\n", r.InvoiceNumber, r.SaleDate, r.SoldBy)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tQTY\tPRICE\tSUBTOTAL")
	for _, it := range r.Items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", it.MedicineName, it.Quantity, money(it.UnitPrice), money(it.Subtotal))
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%s\n", money(r.TotalAmount))
	_ = tw.Flush()
	fmt.Fprintf(out, "Paid by %s. Thank you!\n", r.PaymentMethod)
}

func money(d decimal.Decimal) string {
	return "GHS " + d.StringFixed(2)
}

func parseLineArgs(args []string, defaultQty int) (int64, int, error) {
	if len(args) == 0 {
		return 0, 0, errors.New("medicine id is required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, 0, fmt.Errorf("invalid id %q", args[0])
	}
	qty := defaultQty
	if len(args) > 1 {
		qty, err = strconv.Atoi(args[1])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid quantity %q", args[1])
		}
	}
	return id, qty, nil
}
