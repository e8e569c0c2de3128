// Package database embed dosyası — migration SQL dosyalarını binary'ye gömer.
//
// embed paketi derleme zamanında dosyaları binary'nin içine gömer;
// deploy edilen uygulama yanında migration dosyası taşımaz.
package database

import "embed"

// EmbeddedMigrations, migrations/ dizinindeki SQL dosyalarını içerir.
// Kullanım: fs.Sub(EmbeddedMigrations, "migrations") ile alt dizine eriş.
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
