package statistics

import (
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/vibecodementor/VibeMentor/app/models"
	"github.com/vibecodementor/VibeMentor/internal/pkg/cache"
	"github.com/vibecodementor/VibeMentor/internal/pkg/database"
)

const (
	CacheKeyPaymentsTotal = "statistics:payments:total"
	CacheKeyPaymentsDaily = "statistics:payments:daily:%s" // Format with date YYYY-MM-DD
	CacheKeyRevenueTotal  = "statistics:revenue:total"
	CacheKeyUsers         = "statistics:users:total"
	CacheKeyProUsers      = "statistics:users:pro"
	CacheExpiration       = 30 * time.Minute
)

// StatisticsData holds the aggregate numbers for the admin dashboard
type StatisticsData struct {
	TodayPayments int
	TotalPayments int
	TotalRevenue  string
	TotalUsers    int
	ProUsers      int
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached aggregates are stale
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the cache when the interval has passed
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateStatisticsCache(); err != nil {
			log.Printf("Error updating statistics cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces the next read to refresh the cache
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

// UpdateStatisticsCache updates all statistics in the cache
func UpdateStatisticsCache() error {
	db := database.GetDB()

	// Count completed payments
	var totalPayments int64
	if err := db.Model(&models.PaymentRecord{}).
		Where("status = ?", models.PaymentStatusCompleted).
		Count(&totalPayments).Error; err != nil {
		log.Printf("Error counting total payments: %v", err)
		return err
	}

	// Count today's payments
	var todayPayments int64
	today := time.Now().Format("2006-01-02")
	todayStart, _ := time.Parse("2006-01-02", today)
	todayEnd := todayStart.Add(24 * time.Hour)

	if err := db.Model(&models.PaymentRecord{}).
		Where("status = ? AND created_at BETWEEN ? AND ?", models.PaymentStatusCompleted, todayStart, todayEnd).
		Count(&todayPayments).Error; err != nil {
		log.Printf("Error counting today's payments: %v", err)
		return err
	}

	// Sum revenue: completed minus refunded, kept as a plain decimal string
	var revenue struct {
		Total string
	}
	revenueSQL := "SELECT COALESCE(SUM(CASE WHEN status = ? THEN amount WHEN status = ? THEN -amount ELSE 0 END), 0) AS total FROM payment_records"
	if err := db.Raw(revenueSQL, models.PaymentStatusCompleted, models.PaymentStatusRefunded).
		Scan(&revenue).Error; err != nil {
		log.Printf("Error summing revenue: %v", err)
		return err
	}

	// Count total and pro users
	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		log.Printf("Error counting total users: %v", err)
		return err
	}
	var proUsers int64
	if err := db.Model(&models.Entitlement{}).Where("is_pro = ?", true).Count(&proUsers).Error; err != nil {
		log.Printf("Error counting pro users: %v", err)
		return err
	}

	// Store values in cache
	if err := cache.Set(CacheKeyPaymentsTotal, strconv.FormatInt(totalPayments, 10), CacheExpiration); err != nil {
		log.Printf("Error caching total payments: %v", err)
		return err
	}

	dailyKey := fmt.Sprintf(CacheKeyPaymentsDaily, today)
	if err := cache.Set(dailyKey, strconv.FormatInt(todayPayments, 10), CacheExpiration); err != nil {
		log.Printf("Error caching today's payments: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyRevenueTotal, revenue.Total, CacheExpiration); err != nil {
		log.Printf("Error caching revenue: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyUsers, strconv.FormatInt(totalUsers, 10), CacheExpiration); err != nil {
		log.Printf("Error caching total users: %v", err)
		return err
	}

	if err := cache.Set(CacheKeyProUsers, strconv.FormatInt(proUsers, 10), CacheExpiration); err != nil {
		log.Printf("Error caching pro users: %v", err)
		return err
	}

	log.Printf("Statistics updated in cache: Payments: %d, Today: %d, Revenue: %s, Users: %d, Pro: %d",
		totalPayments, todayPayments, revenue.Total, totalUsers, proUsers)

	return nil
}

// GetTotalPayments returns the number of completed payments from cache or database
func GetTotalPayments() int {
	val, err := cache.Get(CacheKeyPaymentsTotal)
	if err != nil {
		var count int64
		db := database.GetDB()
		if err := db.Model(&models.PaymentRecord{}).
			Where("status = ?", models.PaymentStatusCompleted).
			Count(&count).Error; err != nil {
			log.Printf("Error counting total payments: %v", err)
			return 0
		}

		if err := cache.Set(CacheKeyPaymentsTotal, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching total payments: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetTodayPayments returns the number of payments completed today from cache or database
func GetTodayPayments() int {
	today := time.Now().Format("2006-01-02")
	dailyKey := fmt.Sprintf(CacheKeyPaymentsDaily, today)

	val, err := cache.Get(dailyKey)
	if err != nil {
		var count int64
		db := database.GetDB()
		todayStart, _ := time.Parse("2006-01-02", today)
		todayEnd := todayStart.Add(24 * time.Hour)

		if err := db.Model(&models.PaymentRecord{}).
			Where("status = ? AND created_at BETWEEN ? AND ?", models.PaymentStatusCompleted, todayStart, todayEnd).
			Count(&count).Error; err != nil {
			log.Printf("Error counting today's payments: %v", err)
			return 0
		}

		if err := cache.Set(dailyKey, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching today's payments: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetTotalRevenue returns the net revenue (completed minus refunded) as a decimal string
func GetTotalRevenue() string {
	val, err := cache.Get(CacheKeyRevenueTotal)
	if err == nil && val != "" {
		return val
	}

	var revenue struct {
		Total string
	}
	db := database.GetDB()
	revenueSQL := "SELECT COALESCE(SUM(CASE WHEN status = ? THEN amount WHEN status = ? THEN -amount ELSE 0 END), 0) AS total FROM payment_records"
	if err := db.Raw(revenueSQL, models.PaymentStatusCompleted, models.PaymentStatusRefunded).
		Scan(&revenue).Error; err != nil {
		log.Printf("Error summing revenue: %v", err)
		return "0"
	}

	if err := cache.Set(CacheKeyRevenueTotal, revenue.Total, CacheExpiration); err != nil {
		log.Printf("Error caching revenue: %v", err)
	}

	return revenue.Total
}

// GetTotalUsers returns the total number of users from cache or database
func GetTotalUsers() int {
	val, err := cache.Get(CacheKeyUsers)
	if err != nil {
		var count int64
		db := database.GetDB()
		if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
			log.Printf("Error counting total users: %v", err)
			return 0
		}

		if err := cache.Set(CacheKeyUsers, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching total users: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetProUsers returns the number of users with an active pro entitlement from cache or database
func GetProUsers() int {
	val, err := cache.Get(CacheKeyProUsers)
	if err != nil {
		var count int64
		db := database.GetDB()
		if err := db.Model(&models.Entitlement{}).Where("is_pro = ?", true).Count(&count).Error; err != nil {
			log.Printf("Error counting pro users: %v", err)
			return 0
		}

		if err := cache.Set(CacheKeyProUsers, strconv.FormatInt(count, 10), CacheExpiration); err != nil {
			log.Printf("Error caching pro users: %v", err)
		}

		return int(count)
	}

	count, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}

	return int(count)
}

// GetStatisticsData returns all statistics data as StatisticsData structure
func GetStatisticsData() StatisticsData {
	UpdateCacheIfNeeded()

	return StatisticsData{
		TodayPayments: GetTodayPayments(),
		TotalPayments: GetTotalPayments(),
		TotalRevenue:  GetTotalRevenue(),
		TotalUsers:    GetTotalUsers(),
		ProUsers:      GetProUsers(),
	}
}
