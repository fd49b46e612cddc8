package database

import (
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tessera/models"
)

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&models.SiteSetting{},
		&models.ContentType{},
		&models.ContentTypeField{},
		&models.FieldOption{},
		&models.ContentItem{},
		&models.ContentFieldValue{},
		&models.MediaAttachment{},
		&models.Theme{},
		&models.Template{},
		&models.TemplateSection{},
		&models.Page{},
		&models.PageSection{},
		&models.PageSectionWidget{},
		&models.WidgetType{},
		&models.WidgetTypeField{},
		&models.Widget{},
		&models.WidgetFieldValue{},
		&models.WidgetDisplaySetting{},
		&models.WidgetContentTypeAssociation{},
		&models.WidgetContentQuery{},
		&models.WidgetContentQueryFilter{},
	}
}

func RunMigrations(db *gorm.DB, log zerolog.Logger) error {
	log.Info().Msg("running database migrations")

	if err := db.AutoMigrate(All()...); err != nil {
		log.Error().Err(err).Msg("migrations failed")
		return err
	}

	// The site settings singleton always exists so activation is a single
	// row update.
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.SiteSetting{ID: 1}).Error; err != nil {
		return err
	}

	log.Info().Msg("migrations completed")
	return nil
}
