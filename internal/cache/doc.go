// Package cache 是所有仓库共用的本地对象存储。条目以（仓库根，相对路径）寻址，
// 通过临时文件 + rename 写入，读者不会看到写了一半的构件。校验和 sidecar
// （<file>.sha1、<file>.md5）与正文出自同一字节流，全部暂存后才与正文一起提交；
// 提交中途失败会恢复写入前的正文与 sidecar。
package cache
