package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/langchou/stationgazer/internal/models"
)

// StationRepository 充电站数据仓库，以 evse_id 为键
type StationRepository struct {
	db *DB
}

// NewStationRepository 创建充电站仓库
func NewStationRepository(db *DB) *StationRepository {
	return &StationRepository{db: db}
}

// StationFilter 查询条件，空字段不参与过滤
type StationFilter struct {
	City       string
	PostalCode string
	Plug       string
	Operator   string
	Country    string
	Limit      int
	Offset     int
}

const stationColumns = `
	id, charging_station_id, evse_id, clearinghouse_id, hub_operator_id, charging_pool_id,
	address, geo_coordinates, geo_entrance,
	charging_facilities, authentication_modes, plugs, payment_options,
	is_open_24_hours, renewable_energy, dynamic_info_available, last_update,
	max_capacity, dynamic_power_level, location_image, suboperator_name, hardware_manufacturer,
	delta_type, value_added_services, extras, names, opening_times,
	status, operator_id, status_updated_at, created_at, updated_at
`

// 静态数据覆盖写入；状态列为空时保留已有状态
const upsertStationQuery = `
	INSERT INTO charging_stations (
		charging_station_id, evse_id, clearinghouse_id, hub_operator_id, charging_pool_id,
		address, geo_coordinates, geo_entrance,
		charging_facilities, authentication_modes, plugs, payment_options,
		is_open_24_hours, renewable_energy, dynamic_info_available, last_update,
		max_capacity, dynamic_power_level, location_image, suboperator_name, hardware_manufacturer,
		delta_type, value_added_services, extras, names, opening_times,
		status, operator_id, status_updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29
	)
	ON CONFLICT (evse_id) DO UPDATE SET
		charging_station_id = EXCLUDED.charging_station_id,
		clearinghouse_id = EXCLUDED.clearinghouse_id,
		hub_operator_id = EXCLUDED.hub_operator_id,
		charging_pool_id = EXCLUDED.charging_pool_id,
		address = EXCLUDED.address,
		geo_coordinates = EXCLUDED.geo_coordinates,
		geo_entrance = EXCLUDED.geo_entrance,
		charging_facilities = EXCLUDED.charging_facilities,
		authentication_modes = EXCLUDED.authentication_modes,
		plugs = EXCLUDED.plugs,
		payment_options = EXCLUDED.payment_options,
		is_open_24_hours = EXCLUDED.is_open_24_hours,
		renewable_energy = EXCLUDED.renewable_energy,
		dynamic_info_available = EXCLUDED.dynamic_info_available,
		last_update = EXCLUDED.last_update,
		max_capacity = EXCLUDED.max_capacity,
		dynamic_power_level = EXCLUDED.dynamic_power_level,
		location_image = EXCLUDED.location_image,
		suboperator_name = EXCLUDED.suboperator_name,
		hardware_manufacturer = EXCLUDED.hardware_manufacturer,
		delta_type = EXCLUDED.delta_type,
		value_added_services = EXCLUDED.value_added_services,
		extras = EXCLUDED.extras,
		names = EXCLUDED.names,
		opening_times = EXCLUDED.opening_times,
		status = COALESCE(EXCLUDED.status, charging_stations.status),
		operator_id = COALESCE(EXCLUDED.operator_id, charging_stations.operator_id),
		status_updated_at = COALESCE(EXCLUDED.status_updated_at, charging_stations.status_updated_at),
		updated_at = NOW()
	RETURNING id, created_at, updated_at
`

// FindByEvseID 按 EVSE 编号获取，不存在时返回 ErrNotFound
func (r *StationRepository) FindByEvseID(ctx context.Context, evseID string) (*models.ChargingStation, error) {
	query := `SELECT ` + stationColumns + ` FROM charging_stations WHERE evse_id = $1`
	st, err := scanStation(r.db.Pool.QueryRow(ctx, query, evseID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get station by evse_id: %w", err)
	}
	return st, nil
}

// Upsert 插入或更新单个充电站
func (r *StationRepository) Upsert(ctx context.Context, st *models.ChargingStation) error {
	err := r.db.Pool.QueryRow(ctx, upsertStationQuery, stationArgs(st)...).
		Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert station %s: %w", st.EvseID, err)
	}
	return nil
}

// UpsertAll 批量写入，返回写入条数
func (r *StationRepository) UpsertAll(ctx context.Context, stations []models.ChargingStation) (int, error) {
	if len(stations) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for i := range stations {
		batch.Queue(upsertStationQuery, stationArgs(&stations[i])...)
	}

	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range stations {
		if err := br.QueryRow().Scan(&stations[i].ID, &stations[i].CreatedAt, &stations[i].UpdatedAt); err != nil {
			return i, fmt.Errorf("upsert station %s: %w", stations[i].EvseID, err)
		}
	}
	return len(stations), nil
}

// Find 按条件查询，按 evse_id 排序
func (r *StationRepository) Find(ctx context.Context, f StationFilter) ([]*models.ChargingStation, error) {
	where, args := f.where()
	query := `SELECT ` + stationColumns + ` FROM charging_stations` + where + ` ORDER BY evse_id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find stations: %w", err)
	}
	defer rows.Close()

	var stations []*models.ChargingStation
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan station: %w", err)
		}
		stations = append(stations, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stations: %w", err)
	}
	return stations, nil
}

// Count 统计满足条件的充电站数量（忽略分页）
func (r *StationRepository) Count(ctx context.Context, f StationFilter) (int64, error) {
	where, args := f.where()
	var n int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM charging_stations`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count stations: %w", err)
	}
	return n, nil
}

// Delete 删除单个充电站
func (r *StationRepository) Delete(ctx context.Context, evseID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM charging_stations WHERE evse_id = $1`, evseID)
	if err != nil {
		return fmt.Errorf("delete station: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll 清空缓存的充电站
func (r *StationRepository) DeleteAll(ctx context.Context) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM charging_stations`)
	if err != nil {
		return 0, fmt.Errorf("delete stations: %w", err)
	}
	return tag.RowsAffected(), nil
}

// where 生成 WHERE 子句和参数，字段名固定，值全部参数化
func (f StationFilter) where() (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond, value string) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.City != "" {
		add("LOWER(address->>'City') = LOWER($%d)", f.City)
	}
	if f.PostalCode != "" {
		add("address->>'PostalCode' = $%d", f.PostalCode)
	}
	if f.Country != "" {
		add("address->>'Country' = $%d", f.Country)
	}
	if f.Plug != "" {
		add("$%d = ANY(plugs)", f.Plug)
	}
	if f.Operator != "" {
		args = append(args, f.Operator)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(operator_id = $%d OR hub_operator_id = $%d)", n, n))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (*models.ChargingStation, error) {
	var (
		st       models.ChargingStation
		auth     []string
		payments []string
		extras   models.Extras
		status   *string
	)
	err := row.Scan(
		&st.ID,
		&st.ChargingStationID,
		&st.EvseID,
		&st.ClearinghouseID,
		&st.HubOperatorID,
		&st.ChargingPoolID,
		&st.Address,
		&st.GeoCoordinates.Google,
		&st.GeoChargingPointEntrance.Google,
		&st.ChargingFacilities,
		&auth,
		&st.Plugs,
		&payments,
		&st.IsOpen24Hours,
		&st.RenewableEnergy,
		&st.DynamicInfoAvailable,
		&st.LastUpdate,
		&st.MaxCapacity,
		&st.DynamicPowerLevel,
		&st.LocationImage,
		&st.SuboperatorName,
		&st.HardwareManufacturer,
		&st.DeltaType,
		&st.ValueAddedServices,
		&extras,
		&st.ChargingStationNames,
		&st.OpeningTimes,
		&status,
		&st.OperatorID,
		&st.StatusUpdatedAt,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	st.AuthenticationModes = make([]models.AuthenticationMode, 0, len(auth))
	for _, a := range auth {
		st.AuthenticationModes = append(st.AuthenticationModes, models.AuthenticationMode(a))
	}
	if payments != nil {
		st.PaymentOptions = make([]models.PaymentOption, 0, len(payments))
		for _, p := range payments {
			st.PaymentOptions = append(st.PaymentOptions, models.PaymentOption(p))
		}
	}
	st.SetExtras(extras)
	if status != nil {
		s := models.ParseEVSEStatus(*status)
		st.Status = &s
	}
	return &st, nil
}

func stationArgs(st *models.ChargingStation) []any {
	auth := make([]string, 0, len(st.AuthenticationModes))
	for _, a := range st.AuthenticationModes {
		auth = append(auth, string(a))
	}
	var payments []string
	if st.PaymentOptions != nil {
		payments = make([]string, 0, len(st.PaymentOptions))
		for _, p := range st.PaymentOptions {
			payments = append(payments, string(p))
		}
	}
	plugs := st.Plugs
	if plugs == nil {
		plugs = []string{}
	}

	var status *string
	if st.Status != nil {
		s := st.Status.Raw
		if s == "" {
			s = string(st.Status.Kind)
		}
		status = &s
	}

	return []any{
		st.ChargingStationID,
		st.EvseID,
		st.ClearinghouseID,
		st.HubOperatorID,
		st.ChargingPoolID,
		st.Address,
		st.GeoCoordinates.Google,
		st.GeoChargingPointEntrance.Google,
		st.ChargingFacilities,
		auth,
		plugs,
		payments,
		st.IsOpen24Hours,
		st.RenewableEnergy,
		string(st.DynamicInfoAvailable),
		st.LastUpdate,
		st.MaxCapacity,
		st.DynamicPowerLevel,
		st.LocationImage,
		st.SuboperatorName,
		st.HardwareManufacturer,
		st.DeltaType,
		st.ValueAddedServices,
		st.Extras(),
		st.ChargingStationNames,
		st.OpeningTimes,
		status,
		st.OperatorID,
		st.StatusUpdatedAt,
	}
}
