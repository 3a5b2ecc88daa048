package repositories

import (
	"context"
	"time"

	"github.com/lucsky/cuid"
	"gorm.io/gorm"

	"github.com/ossuary-dev/ossuary-pi/internal/database/models"
)

// KnownNetworkRepository handles persisted known-network data access. It is
// the single owner of known-network records; the orchestrator and startup
// reconnector only read and update through it.
type KnownNetworkRepository struct {
	db *gorm.DB
}

// NewKnownNetworkRepository creates a new KnownNetworkRepository.
func NewKnownNetworkRepository(db *gorm.DB) *KnownNetworkRepository {
	return &KnownNetworkRepository{db: db}
}

// List returns known networks ordered by priority, then most recently used.
// When autoConnectOnly is set, networks with auto-connect disabled are
// excluded.
func (r *KnownNetworkRepository) List(ctx context.Context, autoConnectOnly bool) ([]models.KnownNetwork, error) {
	var networks []models.KnownNetwork
	query := r.db.WithContext(ctx).
		Order("priority DESC").
		Order("last_used DESC")
	if autoConnectOnly {
		query = query.Where("auto_connect = ?", true)
	}
	result := query.Find(&networks)
	return networks, result.Error
}

// FindBySSID returns a known network by SSID, or nil if it is not remembered.
func (r *KnownNetworkRepository) FindBySSID(ctx context.Context, ssid string) (*models.KnownNetwork, error) {
	var network models.KnownNetwork
	result := r.db.WithContext(ctx).First(&network, "ssid = ?", ssid)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &network, nil
}

// Remember creates or updates a known-network record for an SSID.
func (r *KnownNetworkRepository) Remember(ctx context.Context, ssid string, bssid *string, securityType string, priority int) (*models.KnownNetwork, error) {
	var network models.KnownNetwork
	result := r.db.WithContext(ctx).First(&network, "ssid = ?", ssid)

	if result.Error == gorm.ErrRecordNotFound {
		network = models.KnownNetwork{
			ID:           cuid.New(),
			SSID:         ssid,
			BSSID:        bssid,
			SecurityType: securityType,
			AutoConnect:  true,
			Priority:     priority,
		}
		if err := r.db.WithContext(ctx).Create(&network).Error; err != nil {
			return nil, err
		}
		return &network, nil
	} else if result.Error != nil {
		return nil, result.Error
	}

	if bssid != nil {
		network.BSSID = bssid
	}
	if securityType != "" {
		network.SecurityType = securityType
	}
	network.Priority = priority
	if err := r.db.WithContext(ctx).Save(&network).Error; err != nil {
		return nil, err
	}
	return &network, nil
}

// Save persists changes to an existing record.
func (r *KnownNetworkRepository) Save(ctx context.Context, network *models.KnownNetwork) error {
	return r.db.WithContext(ctx).Save(network).Error
}

// Forget deletes a known network by SSID. Returns true if a record was
// removed.
func (r *KnownNetworkRepository) Forget(ctx context.Context, ssid string) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&models.KnownNetwork{}, "ssid = ?", ssid)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// RecordAttempt records the outcome of a connection attempt. A successful
// attempt resets the failure count and bumps last-used time; a failed attempt
// increments the failure count. The record is created if the SSID has not
// been seen before.
func (r *KnownNetworkRepository) RecordAttempt(ctx context.Context, ssid string, success bool) error {
	network, err := r.FindBySSID(ctx, ssid)
	if err != nil {
		return err
	}
	if network == nil {
		created, err := r.Remember(ctx, ssid, nil, "unknown", 0)
		if err != nil {
			return err
		}
		network = created
	}

	now := time.Now()
	if success {
		network.FailureCount = 0
		network.ConnectCount++
		network.LastUsed = &now
		if network.FirstConnected == nil {
			network.FirstConnected = &now
		}
	} else {
		network.FailureCount++
	}
	return r.db.WithContext(ctx).Save(network).Error
}

// SetAutoConnect enables or disables auto-connect for a single SSID.
func (r *KnownNetworkRepository) SetAutoConnect(ctx context.Context, ssid string, autoConnect bool) error {
	return r.db.WithContext(ctx).
		Model(&models.KnownNetwork{}).
		Where("ssid = ?", ssid).
		Update("auto_connect", autoConnect).Error
}

// SetAllAutoConnect sets auto-connect on every known network. Used when
// reconciling state left over from a previous AP-mode session.
func (r *KnownNetworkRepository) SetAllAutoConnect(ctx context.Context, autoConnect bool) error {
	return r.db.WithContext(ctx).
		Model(&models.KnownNetwork{}).
		Where("1 = 1").
		Update("auto_connect", autoConnect).Error
}
