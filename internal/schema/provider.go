package schema

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Provider supplies the ordered field schema for an entity type.
// The grid and importer resolve a schema snapshot once and never re-read
// it mid-run, so concurrent template edits cannot shift columns under an
// in-flight import.
type Provider interface {
	GetEntityFields(ctx context.Context, tenantID, entityType string) ([]FieldDescriptor, error)
	GetBasePath(entityType string) string
}

// StaticProvider serves the built-in catalog only.
type StaticProvider struct{}

func NewStaticProvider() *StaticProvider { return &StaticProvider{} }

func (p *StaticProvider) GetEntityFields(_ context.Context, _, entityType string) ([]FieldDescriptor, error) {
	return BuiltinFields(entityType)
}

func (p *StaticProvider) GetBasePath(entityType string) string {
	return builtinBasePaths[entityType]
}

// FieldTemplate is a tenant-defined override or addition to the built-in
// catalog, stored in Postgres.
type FieldTemplate struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	TenantID   string         `gorm:"index:idx_field_templates_tenant_entity;not null" json:"tenantId"`
	EntityType string         `gorm:"index:idx_field_templates_tenant_entity;not null" json:"entityType"`
	Key        string         `gorm:"not null" json:"key"`
	Descriptor datatypes.JSON `gorm:"type:jsonb" json:"descriptor"`
}

func (FieldTemplate) TableName() string { return "field_templates" }

// TemplateProvider merges tenant field templates over the built-in catalog.
// Overrides are matched by key; unknown keys are appended as custom fields.
type TemplateProvider struct {
	db *gorm.DB
}

func NewTemplateProvider(db *gorm.DB) *TemplateProvider {
	return &TemplateProvider{db: db}
}

func (p *TemplateProvider) GetEntityFields(ctx context.Context, tenantID, entityType string) ([]FieldDescriptor, error) {
	base, err := BuiltinFields(entityType)
	if err != nil {
		return nil, err
	}

	var templates []FieldTemplate
	if err := p.db.WithContext(ctx).
		Where("tenant_id = ? AND entity_type = ?", tenantID, entityType).
		Order("id ASC").
		Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to load field templates: %w", err)
	}

	byKey := make(map[string]int, len(base))
	for i, f := range base {
		byKey[f.Key] = i
	}

	for _, t := range templates {
		var desc FieldDescriptor
		if err := json.Unmarshal(t.Descriptor, &desc); err != nil {
			return nil, fmt.Errorf("invalid field template %d (%s): %w", t.ID, t.Key, err)
		}
		desc.Key = t.Key
		if i, ok := byKey[t.Key]; ok {
			base[i] = desc
		} else {
			byKey[t.Key] = len(base)
			base = append(base, desc)
		}
	}

	return base, nil
}

func (p *TemplateProvider) GetBasePath(entityType string) string {
	return builtinBasePaths[entityType]
}
