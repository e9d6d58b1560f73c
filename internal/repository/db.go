package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// DB 数据库连接池封装
type DB struct {
	Pool *pgxpool.Pool
}

// New 创建数据库连接
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	// 连接池配置
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// 测试连接
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close 关闭连接池
func (db *DB) Close() {
	db.Pool.Close()
}

// Ping 健康检查用
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Migrate 执行数据库迁移
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationCreateChargingStations,
		migrationAddStationQueryIndexes,
	}

	for _, m := range migrations {
		if _, err := db.Pool.Exec(ctx, m); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// 数据库迁移 SQL
const migrationCreateChargingStations = `
CREATE TABLE IF NOT EXISTS charging_stations (
    id BIGSERIAL PRIMARY KEY,
    charging_station_id TEXT NOT NULL,
    evse_id TEXT NOT NULL UNIQUE,
    clearinghouse_id TEXT,
    hub_operator_id TEXT,
    charging_pool_id TEXT,

    -- 位置
    address JSONB NOT NULL,
    geo_coordinates TEXT NOT NULL,
    geo_entrance TEXT NOT NULL,

    -- 设备
    charging_facilities JSONB NOT NULL DEFAULT '[]',
    authentication_modes TEXT[] NOT NULL DEFAULT '{}',
    plugs TEXT[] NOT NULL DEFAULT '{}',
    payment_options TEXT[],
    is_open_24_hours BOOLEAN NOT NULL DEFAULT false,
    renewable_energy BOOLEAN NOT NULL DEFAULT false,
    dynamic_info_available VARCHAR(10) NOT NULL,
    last_update TIMESTAMP WITH TIME ZONE,

    -- 可选信息
    max_capacity INT,
    dynamic_power_level BOOLEAN,
    location_image TEXT,
    suboperator_name TEXT,
    hardware_manufacturer TEXT,
    delta_type VARCHAR(20),
    value_added_services TEXT[],
    extras JSONB,

    names JSONB NOT NULL DEFAULT '[]',
    opening_times JSONB,

    -- 实时状态
    status VARCHAR(50),
    operator_id TEXT,
    status_updated_at TIMESTAMP WITH TIME ZONE,

    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_charging_stations_station_id ON charging_stations(charging_station_id);
`

// 查询辅助索引：城市、邮编、国家、插头
const migrationAddStationQueryIndexes = `
CREATE INDEX IF NOT EXISTS idx_charging_stations_city ON charging_stations (LOWER(address->>'City'));
CREATE INDEX IF NOT EXISTS idx_charging_stations_postal_code ON charging_stations ((address->>'PostalCode'));
CREATE INDEX IF NOT EXISTS idx_charging_stations_country ON charging_stations ((address->>'Country'));
CREATE INDEX IF NOT EXISTS idx_charging_stations_plugs ON charging_stations USING GIN (plugs);
CREATE INDEX IF NOT EXISTS idx_charging_stations_operator ON charging_stations(operator_id);
`
