// Package bucket 定义按版本标签命名的快照存储。磁盘布局遵循：
//
//	<StoragePath>/<版本标签>/   # 每个命名 Bucket 一个 leveldb 目录
//
// Bucket 内部以 "METHOD URL" 为键保存响应快照（状态码、头、正文）。
// 同一键的并发写入遵循 last-write-wins，不提供跨键事务。生命周期层
// 依赖 Names/Delete 在 activate 阶段清理旧版本目录。
package bucket
