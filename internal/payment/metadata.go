package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/caramelapple/storefront/internal/database"
	"github.com/caramelapple/storefront/internal/enum"
	"github.com/caramelapple/storefront/internal/service"
	"github.com/stripe/stripe-go/v80"
)

// MaxMetadataValue is the provider's per-value metadata limit.
const MaxMetadataValue = 500

// Metadata keys carried on the hosted session.
const (
	MetaItems           = "items"
	MetaCustomerName    = "customer_name"
	MetaCustomerEmail   = "customer_email"
	MetaCustomerPhone   = "customer_phone"
	MetaDeliveryDate    = "delivery_date"
	MetaRetrievalMethod = "retrieval_method"
	MetaAddressLine1    = "address_line1"
	MetaAddressLine2    = "address_line2"
	MetaAddressCity     = "address_city"
	MetaAddressState    = "address_state"
	MetaAddressZip      = "address_zip"
	MetaCustomizations  = "customizations"
)

const fallbackCustomerName = "Customer"

var (
	ErrMetadataTooLong = errors.New("order details too long for payment session")
	ErrNoMetadata      = errors.New("no metadata found in session")
	ErrNoItems         = errors.New("no items in session metadata")
)

type metadataItem struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
	Notes     string `json:"notes,omitempty"`
}

// EncodeMetadata flattens a checkout request into session metadata. The
// webhook rebuilds the request from these values once payment completes.
func EncodeMetadata(req service.CheckoutRequest) (map[string]string, error) {
	items := make([]metadataItem, len(req.Items))
	for i, it := range req.Items {
		items[i] = metadataItem{
			ProductID: strings.TrimSpace(it.ProductID),
			Quantity:  it.Quantity,
			Notes:     strings.TrimSpace(it.Notes),
		}
	}
	rawItems, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}

	md := map[string]string{
		MetaItems:           string(rawItems),
		MetaCustomerName:    req.Customer.Name,
		MetaCustomerEmail:   req.Customer.Email,
		MetaCustomerPhone:   req.Customer.Phone,
		MetaDeliveryDate:    req.Order.DeliveryDate,
		MetaRetrievalMethod: req.Order.RetrievalMethod,
		MetaCustomizations:  req.Order.Customizations,
	}
	if a := req.Order.Address; a != nil {
		md[MetaAddressLine1] = a.Line1
		md[MetaAddressLine2] = a.Line2
		md[MetaAddressCity] = a.City
		md[MetaAddressState] = a.State
		md[MetaAddressZip] = a.Zip
	}

	for k, v := range md {
		if v == "" {
			delete(md, k)
			continue
		}
		if len(v) > MaxMetadataValue {
			return nil, fmt.Errorf("%w: %s", ErrMetadataTooLong, k)
		}
	}
	return md, nil
}

// DecodeMetadata rebuilds the checkout request of a completed session.
// Missing contact fields fall back to the details the buyer entered on the
// hosted page. The result always pays by stripe and carries the session id.
func DecodeMetadata(s *stripe.CheckoutSession) (service.CheckoutRequest, error) {
	md := s.Metadata
	if len(md) == 0 {
		return service.CheckoutRequest{}, ErrNoMetadata
	}

	var items []metadataItem
	if raw := md[MetaItems]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return service.CheckoutRequest{}, fmt.Errorf("decode items: %w", err)
		}
	}
	if len(items) == 0 {
		return service.CheckoutRequest{}, ErrNoItems
	}

	var details stripe.CheckoutSessionCustomerDetails
	if s.CustomerDetails != nil {
		details = *s.CustomerDetails
	}

	req := service.CheckoutRequest{
		Customer: service.CheckoutCustomer{
			Name:  firstNonEmpty(md[MetaCustomerName], details.Name, fallbackCustomerName),
			Email: firstNonEmpty(md[MetaCustomerEmail], details.Email, s.CustomerEmail),
			Phone: firstNonEmpty(md[MetaCustomerPhone], details.Phone),
		},
		Order: service.CheckoutOrder{
			DeliveryDate:    md[MetaDeliveryDate],
			RetrievalMethod: md[MetaRetrievalMethod],
			PaymentMethod:   enum.PaymentMethodStripe,
			Customizations:  md[MetaCustomizations],
		},
		PaymentSessionID: s.ID,
	}
	if md[MetaAddressLine1] != "" {
		req.Order.Address = &database.Address{
			Line1: md[MetaAddressLine1],
			Line2: md[MetaAddressLine2],
			City:  md[MetaAddressCity],
			State: md[MetaAddressState],
			Zip:   md[MetaAddressZip],
		}
	}
	for _, it := range items {
		req.Items = append(req.Items, service.CheckoutItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Notes:     it.Notes,
		})
	}
	return req, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
