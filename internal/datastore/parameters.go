// parameters.go: persisted detection parameter sets.
package datastore

import (
	"fmt"

	"github.com/zoosonics/sawcall-go/internal/errors"
	"github.com/zoosonics/sawcall-go/internal/sawcall"
	"gorm.io/gorm"
)

// ParametersBySpecies returns the parameter set configured for a species
// slug, or nil when none exists.
func (ds *DataStore) ParametersBySpecies(slug string) (*sawcall.Parameters, error) {
	if slug == "" {
		return nil, nil
	}
	var set DetectionParameterSet
	err := ds.DB.Where("species = ?", slug).Order("updated_at desc").First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up parameters for species %q: %w", slug, err)
	}
	params := set.Parameters()
	return &params, nil
}

// DefaultParameters returns the parameter set flagged as default, or nil when
// none is flagged.
func (ds *DataStore) DefaultParameters() (*sawcall.Parameters, error) {
	var set DetectionParameterSet
	err := ds.DB.Where("is_default = ?", true).First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up default parameters: %w", err)
	}
	params := set.Parameters()
	return &params, nil
}

// ParameterSetByName returns a named parameter set, or nil when none exists.
func (ds *DataStore) ParameterSetByName(name string) (*DetectionParameterSet, error) {
	var set DetectionParameterSet
	err := ds.DB.Where("name = ?", name).First(&set).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up parameter set %q: %w", name, err)
	}
	return &set, nil
}

// SaveParameterSet creates or updates a parameter set. Saving a set flagged
// as default clears the flag on every other set in the same transaction, so
// at most one default exists at any time.
func (ds *DataStore) SaveParameterSet(set *DetectionParameterSet) error {
	if set.Name == "" {
		return errors.Newf("parameter set has no name").
			Component("datastore").
			Category(errors.CategoryValidation).
			Build()
	}

	return ds.DB.Transaction(func(tx *gorm.DB) error {
		if set.IsDefault {
			err := tx.Model(&DetectionParameterSet{}).
				Where("is_default = ? AND name <> ?", true, set.Name).
				Update("is_default", false).Error
			if err != nil {
				return fmt.Errorf("clearing previous default parameter set: %w", err)
			}
		}
		if err := tx.Save(set).Error; err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryDatabase).
				Context("name", set.Name).
				Build()
		}
		return nil
	})
}
