package services

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/kendall-kelly/installations-scheduling-api/models"
	"github.com/kendall-kelly/installations-scheduling-api/utils"
)

const messageRule = "--------------------------------"

// NotificationConfig controls links and phone normalization in messages
type NotificationConfig struct {
	CountryCode     string
	DeepLinkBaseURL string
	ChatLinkBaseURL string
}

// Message is one composed technician notification
type Message struct {
	TechnicianID   string   `json:"technician_id"`
	TechnicianName string   `json:"technician_name"`
	Phone          string   `json:"phone"`
	Body           string   `json:"body"`
	ChatLink       string   `json:"chat_link"`
	OrderIDs       []string `json:"order_ids"`
}

// Publisher hands a composed message to whatever delivers it. Delivery
// itself is not confirmed.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// NotificationGrouper composes one message per technician from a set of
// installation orders.
type NotificationGrouper struct {
	deps      Dependencies
	cfg       NotificationConfig
	publisher Publisher
}

// NewNotificationGrouper creates the grouper. A nil publisher logs messages
// instead of publishing them.
func NewNotificationGrouper(deps Dependencies, cfg NotificationConfig, publisher Publisher) *NotificationGrouper {
	deps = deps.withDefaults()
	if publisher == nil {
		publisher = NewLogPublisher(deps.Log)
	}
	if cfg.ChatLinkBaseURL == "" {
		cfg.ChatLinkBaseURL = "https://wa.me"
	}
	return &NotificationGrouper{deps: deps, cfg: cfg, publisher: publisher}
}

// GroupAndCompose builds the message for a selection that must belong to a
// single confirmed or completed technician's jobs. A mixed selection produces
// no message at all.
func (g *NotificationGrouper) GroupAndCompose(ctx context.Context, ids []string) (map[string]Message, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, invalidInput("no orders selected")
	}
	ctx, cancel := withTimeout(ctx, g.deps.Timeout)
	defer cancel()

	orders, err := g.load(ctx, ids)
	if err != nil {
		return nil, err
	}

	techID := ""
	for _, o := range orders {
		if o.TechnicianID == nil || *o.TechnicianID == "" {
			return nil, newError(CodeInvalidInput, o.ID, "order %s has no technician assigned", o.SequenceNumber)
		}
		if !notifiable(o.Status) {
			return nil, invalidTransition(o.ID, "order %s is %s; only confirmed or completed orders go to technicians", o.SequenceNumber, o.Status)
		}
		if techID == "" {
			techID = *o.TechnicianID
		} else if *o.TechnicianID != techID {
			return nil, newError(CodeMixedTechnician, "", "selected orders belong to more than one technician")
		}
	}

	msg, err := g.compose(ctx, techID, orders)
	if err != nil {
		return nil, err
	}
	return map[string]Message{techID: msg}, nil
}

// Dispatch groups the selection by technician, composes each group and
// publishes it. Results are reported per order id.
func (g *NotificationGrouper) Dispatch(ctx context.Context, ids []string) (*PartialFailure, error) {
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return nil, invalidInput("no orders selected")
	}
	report := newPartialFailure()

	loadCtx, cancel := withTimeout(ctx, g.deps.Timeout)
	orders, err := g.loadPartial(loadCtx, ids, report)
	cancel()
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]models.InstallationOrder)
	for _, o := range orders {
		if o.TechnicianID == nil || *o.TechnicianID == "" {
			report.Failed[o.ID] = newError(CodeInvalidInput, o.ID, "order has no technician assigned")
			continue
		}
		if !notifiable(o.Status) {
			report.Failed[o.ID] = invalidTransition(o.ID, "order is %s; only confirmed or completed orders go to technicians", o.Status)
			continue
		}
		groups[*o.TechnicianID] = append(groups[*o.TechnicianID], o)
	}

	techIDs := make([]string, 0, len(groups))
	for id := range groups {
		techIDs = append(techIDs, id)
	}
	sort.Strings(techIDs)

	for _, techID := range techIDs {
		group := groups[techID]
		err := g.dispatchGroup(ctx, techID, group)
		for _, o := range group {
			if err != nil {
				report.Failed[o.ID] = classify(err, o.ID)
			} else {
				report.Succeeded = append(report.Succeeded, o.ID)
			}
		}
	}
	sort.Strings(report.Succeeded)
	return report, nil
}

func (g *NotificationGrouper) dispatchGroup(ctx context.Context, techID string, group []models.InstallationOrder) error {
	ctx, cancel := withTimeout(ctx, g.deps.Timeout)
	defer cancel()

	msg, err := g.compose(ctx, techID, group)
	if err != nil {
		g.deps.Metrics.notification(strings.ToLower(string(CodeOf(err))))
		return err
	}
	if err := g.publisher.Publish(ctx, msg); err != nil {
		g.deps.Metrics.notification("publish_failed")
		g.deps.Log.Error("failed to publish technician message", "technician_id", techID, "error", err)
		return err
	}
	g.deps.Metrics.notification("published")
	return nil
}

// compose renders the deterministic message body for one technician
func (g *NotificationGrouper) compose(ctx context.Context, techID string, orders []models.InstallationOrder) (Message, error) {
	name, phone := g.technicianContact(ctx, techID, orders)
	normalized := utils.NormalizePhone(phone, g.cfg.CountryCode)
	if !utils.PlausiblePhone(normalized) {
		return Message{}, newError(CodeNoPhoneOnFile, "", "technician %s has no phone on file", name)
	}

	sorted := append([]models.InstallationOrder(nil), orders...)
	sort.Slice(sorted, func(i, j int) bool {
		di, dj := dateKey(sorted[i]), dateKey(sorted[j])
		if di != dj {
			return di < dj
		}
		return sorted[i].SequenceNumber < sorted[j].SequenceNumber
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Installation jobs for %s (%d)\n", name, len(sorted))
	ids := make([]string, 0, len(sorted))
	for _, o := range sorted {
		ids = append(ids, o.ID)
		b.WriteString(messageRule + "\n")
		g.writeBlock(ctx, &b, o)
	}
	b.WriteString(messageRule)

	body := b.String()
	return Message{
		TechnicianID:   techID,
		TechnicianName: name,
		Phone:          normalized,
		Body:           body,
		ChatLink:       fmt.Sprintf("%s/%s?text=%s", strings.TrimRight(g.cfg.ChatLinkBaseURL, "/"), normalized, url.QueryEscape(body)),
		OrderIDs:       ids,
	}, nil
}

// writeBlock renders one order in fixed field order: number, document,
// address, customer, phone, date, services, notes, link.
func (g *NotificationGrouper) writeBlock(ctx context.Context, b *strings.Builder, o models.InstallationOrder) {
	fmt.Fprintf(b, "Order: %s\n", o.SequenceNumber)
	if o.DocumentNumber != "" {
		fmt.Fprintf(b, "Document: %s\n", o.DocumentNumber)
	}
	fmt.Fprintf(b, "Address: %s\n", g.address(ctx, o))
	fmt.Fprintf(b, "Customer: %s\n", o.CustomerName)
	fmt.Fprintf(b, "Phone: %s\n", o.CustomerPhone)
	fmt.Fprintf(b, "Date: %s\n", dateKey(o))
	services := make([]string, 0, len(o.ServiceTypes))
	for _, t := range o.ServiceTypes {
		services = append(services, string(t))
	}
	fmt.Fprintf(b, "Services: %s\n", strings.Join(services, ", "))
	if o.Notes != "" {
		fmt.Fprintf(b, "Notes: %s\n", o.Notes)
	}
	fmt.Fprintf(b, "Link: %s/installations/%s\n", strings.TrimRight(g.cfg.DeepLinkBaseURL, "/"), o.ID)
}

func (g *NotificationGrouper) address(ctx context.Context, o models.InstallationOrder) string {
	parts := []string{}
	if o.Address != "" {
		parts = append(parts, o.Address)
	}
	dir := g.deps.Directory
	for _, p := range []string{
		dir.Name(ctx, EntityDistrict, o.DistrictID),
		dir.Name(ctx, EntityRegion, o.RegionID),
		dir.Name(ctx, EntityGovernorate, o.GovernorateID),
	} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// technicianContact prefers the name and phone stored on the orders at
// assignment time and falls back to the directory.
func (g *NotificationGrouper) technicianContact(ctx context.Context, techID string, orders []models.InstallationOrder) (string, string) {
	name, phone := "", ""
	for _, o := range orders {
		if name == "" {
			name = o.TechnicianName
		}
		if phone == "" {
			phone = o.TechnicianPhone
		}
	}
	if name == "" || phone == "" {
		if tech, ok, err := g.deps.Directory.Technician(ctx, techID); err == nil && ok {
			if name == "" {
				name = tech.Name
			}
			if phone == "" {
				phone = tech.Phone
			}
		}
	}
	if name == "" {
		name = techID
	}
	return name, phone
}

// load fetches every id, failing when any is missing
func (g *NotificationGrouper) load(ctx context.Context, ids []string) ([]models.InstallationOrder, error) {
	var orders []models.InstallationOrder
	if err := g.deps.DB.WithContext(ctx).Where("id IN ?", ids).Find(&orders).Error; err != nil {
		return nil, classify(err, "")
	}
	if len(orders) != len(ids) {
		found := make(map[string]bool, len(orders))
		for _, o := range orders {
			found[o.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, newError(CodeNotFound, id, "installation order not found")
			}
		}
	}
	return orders, nil
}

// loadPartial fetches the ids that exist and records the rest as failed
func (g *NotificationGrouper) loadPartial(ctx context.Context, ids []string, report *PartialFailure) ([]models.InstallationOrder, error) {
	var orders []models.InstallationOrder
	if err := g.deps.DB.WithContext(ctx).Where("id IN ?", ids).Find(&orders).Error; err != nil {
		return nil, classify(err, "")
	}
	found := make(map[string]bool, len(orders))
	for _, o := range orders {
		found[o.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			report.Failed[id] = newError(CodeNotFound, id, "installation order not found")
		}
	}
	return orders, nil
}

// notifiable reports whether an order in status st may be sent to its technician
func notifiable(st models.InstallationStatus) bool {
	return st == models.InstallationConfirmed || st == models.InstallationCompleted
}

func dateKey(o models.InstallationOrder) string {
	if o.InstallationDate == nil {
		return "unscheduled"
	}
	return models.FormatDate(*o.InstallationDate)
}
