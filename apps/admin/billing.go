package main

import (
	"context"
	"fmt"
)

func (cli *commandLine) generateInvoices(subscriptionID string) error {
	invoices, err := cli.subSvc.GenerateInvoices(context.Background(), subscriptionID)
	for _, inv := range invoices {
		fmt.Printf("invoice %02d/%d: %s due %s\n", inv.Month, inv.Year, inv.Amount.StringFixed(2), inv.DueDate.Format("2006-01-02"))
	}
	if err != nil {
		return err
	}
	fmt.Printf("%d invoice(s) generated\n", len(invoices))
	return nil
}

func (cli *commandLine) expire() error {
	expired, err := cli.subSvc.ExpireLapsed(context.Background())
	if err != nil {
		return err
	}
	for _, sub := range expired {
		fmt.Printf("subscription %s of member %s expired on %s\n", sub.ID, sub.MemberID, sub.EndDate.Format("2006-01-02"))
	}
	// a running API resets the gates of these members on its next subscription sweep
	fmt.Printf("%d subscription(s) expired\n", len(expired))
	return nil
}
