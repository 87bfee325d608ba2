package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	stdio "io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/nbutton23/zxcvbn-go"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/weberc2/easyfs/pkg/config"
	"github.com/weberc2/easyfs/pkg/efs"
	"github.com/weberc2/easyfs/pkg/file"
	"github.com/weberc2/easyfs/pkg/io"
	"github.com/weberc2/easyfs/pkg/objectstore"
	"github.com/weberc2/easyfs/pkg/pack"
	"github.com/weberc2/easyfs/pkg/server"
	. "github.com/weberc2/easyfs/pkg/types"
	"github.com/weberc2/easyfs/pkg/vfs"
	pz "github.com/weberc2/httpeasy"
	"golang.org/x/crypto/bcrypt"
)

var ErrPasswordTooSimple = errors.New("password is too simple")

func main() {
	app := cli.App{
		Name:        "efs",
		Description: "build and inspect easy-fs volume images",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "image",
				Aliases: []string{"i"},
				Usage:   "the volume image (overrides `EFS_IMAGE`)",
			},
			&cli.UintFlag{
				Name:  "offset",
				Usage: "blocks to skip before the volume starts",
			},
			&cli.BoolFlag{
				Name:  "io-stats",
				Usage: "log the number of device block reads and writes",
			},
		},
		Commands: []*cli.Command{{
			Name:        "mkfs",
			Aliases:     []string{"format"},
			Description: "format the image as an empty volume",
			Flags: []cli.Flag{
				&cli.UintFlag{
					Name:  "total-blocks",
					Usage: "the size of the volume in blocks",
				},
				&cli.UintFlag{
					Name:  "inode-bitmap-blocks",
					Usage: "the size of the inode bitmap in blocks",
				},
			},
			Action: withConfig(mkfs),
		}, {
			Name:        "pack",
			Usage:       "pack SOURCE",
			Description: "build the image from the regular files in SOURCE",
			Action: withConfig(func(c *config.Config, ctx *cli.Context) error {
				source := ctx.Args().First()
				if source == "" {
					return fmt.Errorf("pack: missing source directory")
				}
				entries, err := pack.Pack(ctx.Context, source, c.Image, &pack.Options{
					TotalBlocks:       c.TotalBlocks,
					InodeBitmapBlocks: c.InodeBitmapBlocks,
					OffsetBlocks:      c.OffsetBlocks,
					FileSystem:        fsOptions(c),
				})
				if err != nil {
					return err
				}
				return printJSON(entries)
			}),
		}, {
			Name:        "ls",
			Aliases:     []string{"list"},
			Description: "list the root directory",
			Action: withVolume(false, func(root *vfs.Inode, ctx *cli.Context) error {
				names, err := root.Ls()
				if err != nil {
					return err
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			}),
		}, {
			Name:        "cat",
			Usage:       "cat NAME",
			Description: "write a file's contents to stdout",
			Action: withVolume(false, func(root *vfs.Inode, ctx *cli.Context) error {
				f, err := file.Open(root, ctx.Args().First(), file.O_RDONLY)
				if err != nil {
					return err
				}
				if _, err := stdio.Copy(os.Stdout, f); err != nil {
					return fmt.Errorf("writing to stdout: %w", err)
				}
				return nil
			}),
		}, {
			Name:        "put",
			Aliases:     []string{"write"},
			Usage:       "put NAME",
			Description: "replace or create a file with the contents of stdin",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "from",
					Usage: "read from this host file instead of stdin",
				},
			},
			Action: withVolume(true, put),
		}, {
			Name:        "rm",
			Aliases:     []string{"unlink"},
			Usage:       "rm NAME",
			Description: "remove a directory entry",
			Action: withVolume(true, func(root *vfs.Inode, ctx *cli.Context) error {
				return root.Unlink(ctx.Args().First())
			}),
		}, {
			Name:        "ln",
			Aliases:     []string{"link"},
			Usage:       "ln EXISTING NEW",
			Description: "add a hard link to an existing file",
			Action: withVolume(true, func(root *vfs.Inode, ctx *cli.Context) error {
				existing, err := root.Find(ctx.Args().Get(0))
				if err != nil {
					return err
				}
				return root.Link(ctx.Args().Get(1), existing.ID())
			}),
		}, {
			Name:        "stat",
			Usage:       "stat NAME",
			Description: "describe a file",
			Action: withVolume(false, func(root *vfs.Inode, ctx *cli.Context) error {
				stat, err := root.Stat(ctx.Args().First())
				if err != nil {
					return err
				}
				return printJSON(stat)
			}),
		}, {
			Name:        "df",
			Description: "report inode and data block usage",
			Action: withVolume(false, func(root *vfs.Inode, ctx *cli.Context) error {
				usage, err := root.FileSystem().Usage()
				if err != nil {
					return err
				}
				return printJSON(usage)
			}),
		}, {
			Name:        "push",
			Description: "upload the image to the configured bucket",
			Action: withStore(func(c *config.Config, ctx *cli.Context, store objectstore.ImageStore) error {
				image, err := pack.Push(ctx.Context, store, c.Image, c.OffsetBlocks, c.Bucket, c.Key())
				if err != nil {
					return err
				}
				return printJSON(image)
			}),
		}, {
			Name:        "pull",
			Description: "download the image from the configured bucket",
			Action: withStore(func(c *config.Config, ctx *cli.Context, store objectstore.ImageStore) error {
				image, err := pack.Pull(ctx.Context, store, c.Bucket, c.Key(), c.Image)
				if err != nil {
					return err
				}
				if image.Offset != c.OffsetBlocks {
					c.Logger().WithFields(logrus.Fields{
						"image":      c.Image,
						"offset":     image.Offset,
						"configured": c.OffsetBlocks,
					}).Warn("pulled image uses a different offset than configured")
				}
				return printJSON(image)
			}),
		}, {
			Name:        "remote-ls",
			Description: "list the images under the configured prefix",
			Action: withStore(func(c *config.Config, ctx *cli.Context, store objectstore.ImageStore) error {
				images, err := store.ListImages(ctx.Context, c.Bucket, c.Prefix)
				if err != nil {
					return err
				}
				return printJSON(images)
			}),
		}, {
			Name:        "remote-rm",
			Description: "delete the image from the configured bucket",
			Action: withStore(func(c *config.Config, ctx *cli.Context, store objectstore.ImageStore) error {
				return store.DeleteImage(ctx.Context, c.Bucket, c.Key())
			}),
		}, {
			Name:        "serve",
			Description: "serve the root directory over HTTP",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "addr",
					Usage: "the listen address (overrides `EFS_ADDR`)",
				},
			},
			Action: withConfig(serve),
		}, {
			Name:        "passwd",
			Description: "read a password from stdin and print its hash",
			Action: func(ctx *cli.Context) error {
				return passwd(os.Stdin, os.Stdout)
			},
		}},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func withConfig(f func(*config.Config, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if image := ctx.String("image"); image != "" {
			c.Image = image
		}
		if ctx.IsSet("offset") {
			c.OffsetBlocks = uint32(ctx.Uint("offset"))
		}
		if err := c.Validate(); err != nil {
			return err
		}
		return f(c, ctx)
	}
}

func fsOptions(c *config.Config) *efs.Options {
	return &efs.Options{CacheCapacity: c.CacheCapacity, Logger: c.Logger()}
}

func openDevice(c *config.Config, blocks Block) (*io.FileDevice, io.BlockDevice, error) {
	var size Block
	if blocks > 0 {
		size = Block(c.OffsetBlocks) + blocks
	}
	device, err := io.OpenFileDevice(c.Image, size)
	if err != nil {
		return nil, nil, err
	}
	if c.OffsetBlocks > 0 {
		return device, io.NewOffsetDevice(device, Block(c.OffsetBlocks)), nil
	}
	return device, device, nil
}

func mkfs(c *config.Config, ctx *cli.Context) error {
	if ctx.IsSet("total-blocks") {
		c.TotalBlocks = uint32(ctx.Uint("total-blocks"))
	}
	if ctx.IsSet("inode-bitmap-blocks") {
		c.InodeBitmapBlocks = uint32(ctx.Uint("inode-bitmap-blocks"))
	}
	device, dev, err := openDevice(c, Block(c.TotalBlocks))
	if err != nil {
		return err
	}
	defer device.Close()

	fs, err := efs.Create(dev, c.TotalBlocks, c.InodeBitmapBlocks, fsOptions(c))
	if err != nil {
		return err
	}
	if err := fs.Close(); err != nil {
		return err
	}
	return device.Sync()
}

func withVolume(
	write bool,
	f func(*vfs.Inode, *cli.Context) error,
) cli.ActionFunc {
	return withConfig(func(c *config.Config, ctx *cli.Context) (err error) {
		device, dev, err := openDevice(c, 0)
		if err != nil {
			return err
		}
		defer device.Close()

		var counter *io.CountingDevice
		if ctx.Bool("io-stats") {
			counter = &io.CountingDevice{Inner: dev}
			dev = counter
		}

		fs, err := efs.Open(dev, fsOptions(c))
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := fs.Close(); err == nil {
				err = closeErr
			}
			if write && err == nil {
				err = device.Sync()
			}
			if counter != nil {
				stats := fs.Cache().Stats()
				fs.Logger().WithFields(logrus.Fields{
					"image":     c.Image,
					"reads":     counter.Reads(),
					"writes":    counter.Writes(),
					"hits":      stats.Hits,
					"misses":    stats.Misses,
					"evictions": stats.Evictions,
				}).Info("device i/o")
			}
		}()
		return f(vfs.Root(fs), ctx)
	})
}

func put(root *vfs.Inode, ctx *cli.Context) error {
	var src stdio.Reader = os.Stdin
	if from := ctx.String("from"); from != "" {
		host, err := os.Open(from)
		if err != nil {
			return err
		}
		defer host.Close()
		src = host
	}
	f, err := file.Open(root, ctx.Args().First(), file.O_WRONLY|file.O_CREATE)
	if err != nil {
		return err
	}
	n, err := stdio.Copy(f, src)
	if err != nil {
		return fmt.Errorf("writing `%s`: %w", ctx.Args().First(), err)
	}
	root.FileSystem().Logger().WithFields(logrus.Fields{
		"name":  ctx.Args().First(),
		"inode": f.Inode().ID(),
		"size":  n,
	}).Info("wrote file")
	return nil
}

func withStore(
	f func(*config.Config, *cli.Context, objectstore.ImageStore) error,
) cli.ActionFunc {
	return withConfig(func(c *config.Config, ctx *cli.Context) error {
		if err := c.ValidateRemote(); err != nil {
			return err
		}
		sess, err := session.NewSession()
		if err != nil {
			return fmt.Errorf("creating AWS session: %w", err)
		}
		return f(c, ctx, &objectstore.S3ImageStore{
			Client:   s3.New(sess),
			Compress: true,
		})
	})
}

func serve(c *config.Config, ctx *cli.Context) error {
	if addr := ctx.String("addr"); addr != "" {
		c.Addr = addr
	}
	device, dev, err := openDevice(c, 0)
	if err != nil {
		return err
	}
	defer device.Close()

	logger := c.Logger()
	fs, err := efs.Open(dev, fsOptions(c))
	if err != nil {
		return err
	}
	defer fs.Close()

	s := server.Server{
		Root:         vfs.Root(fs),
		PasswordHash: c.PasswordHash,
		Logger:       logger,
	}
	logger.WithFields(logrus.Fields{
		"image": c.Image,
		"addr":  c.Addr,
		"auth":  c.PasswordHash != "",
	}).Info("serving volume")
	return http.ListenAndServe(
		c.Addr,
		pz.Register(pz.JSONLog(os.Stderr), s.Routes()...),
	)
}

func passwd(stdin stdio.Reader, stdout stdio.Writer) error {
	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, stdio.EOF) {
		return fmt.Errorf("reading password: %w", err)
	}
	hash, err := hashPassword(strings.TrimRight(line, "\r\n"))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, hash)
	return err
}

func hashPassword(password string) (string, error) {
	if zxcvbn.PasswordStrength(password, []string{"efs"}).Score < 3 {
		return "", fmt.Errorf("validating password: %w", ErrPasswordTooSimple)
	}
	hash, err := bcrypt.GenerateFromPassword(
		[]byte(password),
		bcrypt.DefaultCost,
	)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling to JSON: %w", err)
	}
	if _, err := fmt.Printf("%s\n", data); err != nil {
		return fmt.Errorf("writing JSON to stdout: %w", err)
	}
	return nil
}
