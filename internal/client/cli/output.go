// internal/client/cli/output.go
package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"storefront/internal/client/cartstate"
	"storefront/internal/client/cartsync"
)

type itemView struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type stateView struct {
	Items        []itemView `json:"items"`
	TotalItems   int        `json:"totalItems"`
	SyncStatus   string     `json:"syncStatus"`
	Message      string     `json:"message,omitempty"`
	Action       string     `json:"action,omitempty"`
	SignedIn     bool       `json:"signedIn"`
	GuestSession string     `json:"guestSessionId,omitempty"`
}

func (a *app) view(st cartstate.State, res *cartsync.Result) stateView {
	v := stateView{
		Items:      make([]itemView, 0, len(st.Items)),
		TotalItems: st.TotalItems,
		SyncStatus: string(st.SyncStatus),
		SignedIn:   a.token() != "",
	}
	for _, it := range st.Items {
		v.Items = append(v.Items, itemView{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if msg, ok := cartsync.Message(st.SyncStatus, st.Error); ok {
		v.Message = msg
	}
	if res != nil {
		v.Action = string(res.Action)
	}
	if sid, ok := a.sess.GuestSessionID(); ok {
		v.GuestSession = sid
	}
	return v
}

func (a *app) print(st cartstate.State, res *cartsync.Result) error {
	v := a.view(st, res)

	if a.format == "json" {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	if len(v.Items) == 0 {
		fmt.Fprintln(tw, "(cart is empty)")
	}
	for _, it := range v.Items {
		fmt.Fprintf(tw, "%s\t%d\n", it.ProductID, it.Quantity)
	}
	fmt.Fprintf(tw, "total\t%d\n", v.TotalItems)
	if v.Action != "" {
		fmt.Fprintf(tw, "action\t%s\n", v.Action)
	}
	if v.Message != "" {
		fmt.Fprintf(tw, "status\t%s\n", v.Message)
	}
	if v.SignedIn {
		fmt.Fprintln(tw, "user\tsigned in")
	} else if v.GuestSession != "" {
		fmt.Fprintf(tw, "guest\t%s\n", v.GuestSession)
	}
	return tw.Flush()
}
