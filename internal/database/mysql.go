package database

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"serial-gateway/internal/config"

	_ "github.com/go-sql-driver/mysql"
)

// 表名常量
const (
	TableSerialFrames     = "serial_frames"
	TableConnectionEvents = "connection_events"
)

// SQL 建表语句常量
// 使用 InnoDB 引擎支持事务,utf8mb4 支持完整 Unicode 字符集
const (
	// createSerialFramesTableSQL 串口帧流量表
	// 记录收发的每一帧原始数据,用于审计和回放分析
	createSerialFramesTableSQL = `
		CREATE TABLE IF NOT EXISTS serial_frames (
			id BIGINT AUTO_INCREMENT PRIMARY KEY COMMENT '自增ID',
			direction VARCHAR(8) NOT NULL COMMENT '帧方向(in/out)',
			port_name VARCHAR(128) NOT NULL COMMENT '串口标识',
			payload TEXT NOT NULL COMMENT 'Hex编码的帧内容',
			size INT NOT NULL COMMENT '帧字节数',
			created_at BIGINT NOT NULL COMMENT '创建时间戳(毫秒)',
			INDEX idx_direction_created (direction, created_at DESC),
			INDEX idx_port_created (port_name, created_at DESC),
			INDEX idx_created_at (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
		COMMENT='串口帧流量表'
	`

	// createConnectionEventsTableSQL 连接事件表
	// 记录串口连接的打开与断开,用于稳定性统计
	createConnectionEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS connection_events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY COMMENT '自增ID',
			port_name VARCHAR(128) NOT NULL COMMENT '串口标识',
			connected BOOLEAN NOT NULL COMMENT '是否已连接',
			detail TEXT COMMENT '事件详情',
			created_at BIGINT NOT NULL COMMENT '创建时间戳(毫秒)',
			INDEX idx_port_created (port_name, created_at DESC),
			INDEX idx_created_at (created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci
		COMMENT='串口连接事件表'
	`
)

// ==================== 行数据结构 ====================

// FrameRow 一条待落库的帧记录
type FrameRow struct {
	Direction string
	PortName  string
	Payload   string // Hex 编码
	Size      int
	CreatedAt int64 // Unix 毫秒
}

// EventRow 一条待落库的连接事件
type EventRow struct {
	PortName  string
	Connected bool
	Detail    string
	CreatedAt int64 // Unix 毫秒
}

// ==================== 连接管理 ====================

// MySQLDB MySQL 数据库连接管理器
// 封装连接池和表初始化逻辑
type MySQLDB struct {
	*sql.DB
}

// NewMySQLDB 创建 MySQL 数据库连接
// 自动配置连接池参数并测试连接可用性
func NewMySQLDB(mysqlConfig config.MySQLConfig) (*MySQLDB, error) {
	database, err := sql.Open("mysql", mysqlConfig.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql connection: %w", err)
	}

	configureConnectionPool(database, mysqlConfig)

	if err := testConnection(database); err != nil {
		database.Close()
		return nil, err
	}

	log.Printf("[MYSQL] 数据库连接成功")
	return &MySQLDB{DB: database}, nil
}

// configureConnectionPool 配置数据库连接池参数
func configureConnectionPool(database *sql.DB, mysqlConfig config.MySQLConfig) {
	database.SetMaxOpenConns(mysqlConfig.MaxOpenConns)
	database.SetMaxIdleConns(mysqlConfig.MaxIdleConns)
	database.SetConnMaxLifetime(mysqlConfig.ConnMaxLifetime)
}

// testConnection 测试数据库连接是否可用
func testConnection(database *sql.DB) error {
	if err := database.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// InitTables 初始化数据库表结构
// 幂等操作,多次执行不会产生副作用
func (database *MySQLDB) InitTables() error {
	if err := database.createAllTables(); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[MYSQL] 数据库表初始化完成")
	return nil
}

// createAllTables 创建所有业务表
// 使用 IF NOT EXISTS 确保表已存在时不会报错
func (database *MySQLDB) createAllTables() error {
	tables := []tableDefinition{
		{name: TableSerialFrames, sql: createSerialFramesTableSQL},
		{name: TableConnectionEvents, sql: createConnectionEventsTableSQL},
	}

	for _, table := range tables {
		if err := database.createTable(table); err != nil {
			return err
		}
	}

	return nil
}

// tableDefinition 表定义结构
type tableDefinition struct {
	name string
	sql  string
}

// createTable 创建单个数据表
func (database *MySQLDB) createTable(table tableDefinition) error {
	if _, err := database.Exec(table.sql); err != nil {
		log.Printf("[MYSQL] 创建表 %s 失败: %v", table.name, err)
		return fmt.Errorf("failed to create table %s: %w", table.name, err)
	}
	return nil
}

// ==================== 批量写入 ====================

// InsertFrameBatch 批量写入帧记录
func (database *MySQLDB) InsertFrameBatch(rows []FrameRow) error {
	if len(rows) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*5)
	for _, row := range rows {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?)")
		args = append(args, row.Direction, row.PortName, row.Payload, row.Size, row.CreatedAt)
	}

	statement := fmt.Sprintf(
		"INSERT INTO %s (direction, port_name, payload, size, created_at) VALUES %s",
		TableSerialFrames, strings.Join(placeholders, ", "),
	)

	if _, err := database.Exec(statement, args...); err != nil {
		return fmt.Errorf("failed to insert frame batch: %w", err)
	}
	return nil
}

// InsertEventBatch 批量写入连接事件
func (database *MySQLDB) InsertEventBatch(rows []EventRow) error {
	if len(rows) == 0 {
		return nil
	}

	placeholders := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*4)
	for _, row := range rows {
		placeholders = append(placeholders, "(?, ?, ?, ?)")
		args = append(args, row.PortName, row.Connected, row.Detail, row.CreatedAt)
	}

	statement := fmt.Sprintf(
		"INSERT INTO %s (port_name, connected, detail, created_at) VALUES %s",
		TableConnectionEvents, strings.Join(placeholders, ", "),
	)

	if _, err := database.Exec(statement, args...); err != nil {
		return fmt.Errorf("failed to insert event batch: %w", err)
	}
	return nil
}

// Close 关闭数据库连接
// 释放所有连接池资源
func (database *MySQLDB) Close() error {
	if err := database.DB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}
