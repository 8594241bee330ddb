package services

import (
	"context"
	"log"
	"sort"
	"strings"
	"time"

	"carwash-ops-server/models"
)

const (
	revenueWindowDays = 7
	recentOrdersLimit = 5
)

type RevenueBucket struct {
	Label   string  `json:"label"`
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
}

type RecentOrder struct {
	ID           string     `json:"id"`
	Status       string     `json:"status"`
	TotalAmount  float64    `json:"total_amount"`
	CreatedAt    *time.Time `json:"created_at"`
	CustomerName string     `json:"customer_name"`
}

type DashboardSummary struct {
	TotalOrders    int             `json:"total_orders"`
	PendingOrders  int             `json:"pending_orders"`
	ActiveUsers    int             `json:"active_users"`
	TotalRevenue   float64         `json:"total_revenue"`
	RevenueSeries  []RevenueBucket `json:"revenue_series"`
	RecentOrders   []RecentOrder   `json:"recent_orders"`
	SkippedRecords int             `json:"skipped_records"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

type DashboardService struct {
	snapshots SnapshotReader
	loc       *time.Location
	now       func() time.Time
}

func NewDashboardService(snapshots SnapshotReader, loc *time.Location) *DashboardService {
	if loc == nil {
		loc = time.UTC
	}
	return &DashboardService{snapshots: snapshots, loc: loc, now: time.Now}
}

// Summary recomputes the dashboard from the current order history
func (s *DashboardService) Summary(ctx context.Context) (*DashboardSummary, error) {
	snapshots, err := s.snapshots.OrderSnapshots(ctx)
	if err != nil {
		return nil, err
	}

	summary := AggregateDashboard(snapshots, s.now(), s.loc)
	if summary.SkippedRecords > 0 {
		log.Printf("⚠️ %v: %d order(s) left out of revenue", ErrAggregationPartial, summary.SkippedRecords)
	}
	return summary, nil
}

// AggregateDashboard is pure: it never fails and never mutates its input.
// Records without a timestamp still count towards the totals but land in no
// day bucket. Records with an unknown status or a negative amount are left
// out of revenue and reported in SkippedRecords.
func AggregateDashboard(snapshots []models.OrderSnapshot, now time.Time, loc *time.Location) *DashboardSummary {
	if loc == nil {
		loc = time.UTC
	}

	summary := &DashboardSummary{
		RevenueSeries: make([]RevenueBucket, revenueWindowDays),
		RecentOrders:  []RecentOrder{},
		GeneratedAt:   now,
	}

	today := startOfDay(now.In(loc))
	bucketIndex := make(map[string]int, revenueWindowDays)
	for i := 0; i < revenueWindowDays; i++ {
		day := today.AddDate(0, 0, i-(revenueWindowDays-1))
		date := day.Format("2006-01-02")
		summary.RevenueSeries[i] = RevenueBucket{Label: day.Format("Mon"), Date: date}
		bucketIndex[date] = i
	}

	customers := make(map[string]struct{})
	for _, snap := range snapshots {
		summary.TotalOrders++
		if snap.CustomerID != "" {
			customers[snap.CustomerID] = struct{}{}
		}

		status, known := models.ParseOrderStatus(strings.TrimSpace(snap.Status))
		if !known || snap.TotalAmount < 0 {
			summary.SkippedRecords++
			continue
		}

		if status == models.OrderStatusBooked {
			summary.PendingOrders++
		}
		if status != models.OrderStatusCompleted {
			continue
		}

		summary.TotalRevenue += snap.TotalAmount
		if snap.CreatedAt.IsZero() {
			continue
		}
		if i, ok := bucketIndex[snap.CreatedAt.In(loc).Format("2006-01-02")]; ok {
			summary.RevenueSeries[i].Revenue += snap.TotalAmount
		}
	}
	summary.ActiveUsers = len(customers)
	summary.RecentOrders = recentOrders(snapshots)

	return summary
}

func recentOrders(snapshots []models.OrderSnapshot) []RecentOrder {
	sorted := make([]models.OrderSnapshot, len(snapshots))
	copy(sorted, snapshots)
	// Missing timestamps sort last
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].CreatedAt, sorted[j].CreatedAt
		if a.IsZero() != b.IsZero() {
			return b.IsZero()
		}
		return a.After(b)
	})

	n := len(sorted)
	if n > recentOrdersLimit {
		n = recentOrdersLimit
	}

	recent := make([]RecentOrder, 0, n)
	for _, snap := range sorted[:n] {
		r := RecentOrder{
			ID:           snap.ID,
			Status:       snap.Status,
			TotalAmount:  snap.TotalAmount,
			CustomerName: snap.CustomerName,
		}
		if !snap.CreatedAt.IsZero() {
			at := snap.CreatedAt
			r.CreatedAt = &at
		}
		if strings.TrimSpace(r.CustomerName) == "" {
			r.CustomerName = models.GuestDisplayName
		}
		recent = append(recent, r)
	}
	return recent
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
