// Package redis 使用 Redis list 保存最近完成的订单，适合多个终端实例共享订单历史。
package redis
